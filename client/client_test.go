package client_test

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/evalkernel/client"
	"github.com/tailored-agentic-units/evalkernel/kernel"
	"github.com/tailored-agentic-units/evalkernel/protocol"
)

type served struct {
	kernel *kernel.Kernel
	url    string
	file   string
	done   chan error
}

func serveKernel(t *testing.T) *served {
	t.Helper()

	cfg := kernel.DefaultConfig()
	cfg.Observer = "noop"
	cfg.ConnectionFile = filepath.Join(t.TempDir(), "kernel.json")

	k, err := kernel.New(&cfg)
	require.NoError(t, err)
	require.NoError(t, k.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	s := &served{
		kernel: k,
		url:    "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(k.Connection().ShellPort)),
		file:   cfg.ConnectionFile,
		done:   make(chan error, 1),
	}
	go func() { s.done <- k.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			t.Error("kernel did not stop")
		}
	})
	return s
}

func dial(t *testing.T, s *served) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig()
	cfg.Heartbeat.Interval = "20ms"
	cfg.Heartbeat.Timeout = "200ms"

	c, err := client.Dial(context.Background(), s.url, &cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDial_LearnsPorts(t *testing.T) {
	s := serveKernel(t)
	c := dial(t, s)

	info := s.kernel.Connection()
	assert.Equal(t, protocol.ConnectReplyContent{
		ShellPort: info.ShellPort,
		IOPubPort: info.IOPubPort,
		StdinPort: info.StdinPort,
		HBPort:    info.HBPort,
	}, c.Ports())
	assert.Equal(t, "frontend", c.Session().Username())
}

func TestDial_ConnectionFile(t *testing.T) {
	s := serveKernel(t)

	cfg := client.DefaultConfig()
	c, err := client.DialConnectionFile(context.Background(), s.file, &cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, s.kernel.Connection().HBPort, c.Ports().HBPort)
}

func TestDial_Errors(t *testing.T) {
	cfg := client.DefaultConfig()

	_, err := client.Dial(context.Background(), "not a url", &cfg)
	assert.ErrorIs(t, err, client.ErrBadShellURL)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = client.Dial(ctx, "http://127.0.0.1:1", &cfg)
	assert.Error(t, err)
}

func TestClient_ExecuteStreamsIOPub(t *testing.T) {
	s := serveKernel(t)
	c := dial(t, s)
	ctx := testContext(t)

	stream, err := c.IOPub(ctx)
	require.NoError(t, err)
	defer stream.Close()

	reply, err := c.Execute(ctx, protocol.ExecuteRequestContent{Code: "fmt.Println(\"hi\")\n1 + 1"})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, 1, reply.ExecutionCount)

	var types []protocol.MsgType
	for {
		env, err := stream.Next()
		require.NoError(t, err)
		types = append(types, env.MsgType)
		assert.Equal(t, c.Session().ID(), env.ParentHeader.Session)

		if env.MsgType == protocol.Status {
			var status protocol.StatusContent
			require.NoError(t, env.Decode(&status))
			if status.ExecutionState == protocol.StateIdle {
				break
			}
		}
		if env.MsgType == protocol.PyOut {
			var out protocol.PyOutContent
			require.NoError(t, env.Decode(&out))
			assert.Equal(t, "2", out.Data[protocol.MIMEPlainText])
		}
	}

	assert.Equal(t, []protocol.MsgType{
		protocol.Status, protocol.PyIn, protocol.Stream, protocol.PyOut, protocol.Status,
	}, types)
}

func TestClient_ExecuteError(t *testing.T) {
	s := serveKernel(t)
	c := dial(t, s)

	reply, err := c.Execute(testContext(t), protocol.ExecuteRequestContent{Code: "undefinedName"})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusError, reply.Status)
	assert.Equal(t, "NameError", reply.EName)
}

func TestClient_Stdin(t *testing.T) {
	s := serveKernel(t)
	c := dial(t, s)
	ctx := testContext(t)

	stdin, err := c.Stdin(ctx)
	require.NoError(t, err)
	defer stdin.Close()

	prompts := make(chan string, 1)
	go stdin.Serve(ctx, func(prompt string) (string, error) {
		prompts <- prompt
		return "world", nil
	})

	reply, err := c.Execute(ctx, protocol.ExecuteRequestContent{Code: `"hello " + kernel.Input("name? ")`})
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, reply.Status, reply.EValue)
	assert.Equal(t, "name? ", <-prompts)

	info, err := c.Inspect(ctx, "fmt")
	require.NoError(t, err)
	assert.True(t, info.Found)
	assert.Equal(t, "fmt", info.StringForm)
}

func TestClient_InputWithoutKeyboard(t *testing.T) {
	s := serveKernel(t)
	c := dial(t, s)

	reply, err := c.Execute(testContext(t), protocol.ExecuteRequestContent{Code: `kernel.Input("> ")`})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusError, reply.Status)
	assert.Equal(t, "StdinNotImplementedError", reply.EName)
}

func TestClient_Attributes(t *testing.T) {
	s := serveKernel(t)
	c := dial(t, s)
	ctx := testContext(t)

	got, err := c.GetAttr(ctx, "kernel.session")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, got.Status)
	assert.Equal(t, s.kernel.Session().ID(), got.Value)

	got, err = c.GetAttr(ctx, "kernel.nothing")
	require.NoError(t, err)
	assert.Equal(t, "AttributeError", got.Status)

	set, err := c.SetAttr(ctx, "kernel.session", "other")
	require.NoError(t, err)
	assert.Equal(t, "AccessError", set.Status)
}

func TestClient_HistoryAndComplete(t *testing.T) {
	s := serveKernel(t)
	c := dial(t, s)
	ctx := testContext(t)

	_, err := c.Execute(ctx, protocol.ExecuteRequestContent{Code: "answer := 42"})
	require.NoError(t, err)

	items, err := c.History(ctx, protocol.HistoryRequestContent{HistAccessType: protocol.HistoryTail, N: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "answer := 42", items[0].Input)

	_, err = c.History(ctx, protocol.HistoryRequestContent{HistAccessType: "bogus"})
	assert.ErrorIs(t, err, client.ErrRequestFailed)

	completed, err := c.Complete(ctx, "ans", 3)
	require.NoError(t, err)
	assert.Contains(t, completed.Matches, "answer")
}

func TestClient_Monitor(t *testing.T) {
	s := serveKernel(t)
	c := dial(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	m := c.Monitor(func() { t.Error("kernel declared dead while serving") })
	err := m.Run(ctx)
	assert.True(t, err == nil || errors.Is(err, context.DeadlineExceeded), "unexpected error: %v", err)
	assert.Equal(t, s.kernel.Session().ID(), m.Identity())
}

func TestClient_ShutdownRestart(t *testing.T) {
	s := serveKernel(t)
	c := dial(t, s)
	ctx := testContext(t)

	stream, err := c.IOPub(ctx)
	require.NoError(t, err)
	defer stream.Close()

	restart, err := c.Shutdown(ctx, true)
	require.NoError(t, err)
	assert.True(t, restart)

	select {
	case err := <-s.done:
		assert.ErrorIs(t, err, kernel.ErrRestartRequested)
		s.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("kernel did not stop after shutdown")
	}

	// The stream ends once the kernel is gone. A clean close reads as EOF.
	for {
		if _, err := stream.Next(); err != nil {
			if !errors.Is(err, io.EOF) {
				t.Logf("stream ended with %v", err)
			}
			break
		}
	}

	_, err = c.Execute(ctx, protocol.ExecuteRequestContent{Code: "1"})
	assert.Error(t, err)
}
