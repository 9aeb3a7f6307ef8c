package heartbeat_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tailored-agentic-units/evalkernel/heartbeat"
)

func startServer(t *testing.T, identity string) *heartbeat.Server {
	t.Helper()

	srv := heartbeat.NewServer(identity, nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		<-done
	})
	return srv
}

func url(srv *heartbeat.Server) string {
	return fmt.Sprintf("ws://127.0.0.1:%d%s", srv.Port(), heartbeat.Path)
}

func fastConfig() *heartbeat.Config {
	return &heartbeat.Config{Interval: "20ms", Timeout: "50ms", MaxMisses: 3}
}

func TestFrame(t *testing.T) {
	frame := heartbeat.Frame("kernel-1", []byte("12.5"))
	assert.Equal(t, "kernel-1|12.5", string(frame))

	identity, payload, err := heartbeat.ParseFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, "kernel-1", identity)
	assert.Equal(t, "12.5", string(payload))

	_, _, err = heartbeat.ParseFrame([]byte("no-separator"))
	assert.ErrorIs(t, err, heartbeat.ErrBadEcho)
}

func TestServer_Echo(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	srv := startServer(t, "kernel-1")

	conn, _, err := websocket.DefaultDialer.Dial(url(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	for _, payload := range []string{"0.1", "0.2", "opaque bytes"} {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(payload)))
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "kernel-1|"+payload, string(frame))
	}
}

func TestServer_ServeWithoutListen(t *testing.T) {
	srv := heartbeat.NewServer("kernel-1", nil)
	assert.ErrorIs(t, srv.Serve(), heartbeat.ErrNotListening)
}

func TestMonitor_Alive(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	srv := startServer(t, "kernel-1")

	var deadCalls atomic.Int32
	mon := heartbeat.NewMonitor(url(srv), fastConfig(), func() { deadCalls.Add(1) }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, mon.Run(ctx))
	assert.Equal(t, int32(0), deadCalls.Load())
	assert.Equal(t, "kernel-1", mon.Identity())
}

func TestMonitor_DeclaresDead(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	srv := heartbeat.NewServer("kernel-1", nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	var deadCalls atomic.Int32
	mon := heartbeat.NewMonitor(url(srv), fastConfig(), func() { deadCalls.Add(1) }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- mon.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	require.NoError(t, srv.Shutdown(shutdownCtx))
	shutdownCancel()
	require.NoError(t, <-done)

	err := <-result
	assert.True(t, errors.Is(err, heartbeat.ErrKernelDead), "Run() error = %v, want %v", err, heartbeat.ErrKernelDead)
	assert.Equal(t, int32(1), deadCalls.Load())

	select {
	case <-mon.Dead():
	default:
		t.Error("Dead() channel not closed")
	}
}

func TestConfig(t *testing.T) {
	cfg := heartbeat.DefaultConfig()
	assert.Equal(t, time.Second, cfg.IntervalDuration())

	cfg.Merge(&heartbeat.Config{Interval: "250ms", MaxMisses: 2})
	assert.Equal(t, 250*time.Millisecond, cfg.IntervalDuration())
	assert.Equal(t, time.Second, cfg.TimeoutDuration())
	assert.Equal(t, 2, cfg.MaxMisses)

	cfg.Timeout = "bogus"
	assert.Equal(t, time.Second, cfg.TimeoutDuration())
}
