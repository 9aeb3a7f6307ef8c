package kernel_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/evalkernel/history"
	"github.com/tailored-agentic-units/evalkernel/kernel"
	"github.com/tailored-agentic-units/evalkernel/observability"
)

type stickyStore struct {
	history.Store
}

func (stickyStore) Close() error {
	return errors.New("disk went away")
}

func TestNew_FailureLogsCleanupErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	cfg := kernel.DefaultConfig()
	cfg.Engine.EchoMaxLines = -1

	_, err := kernel.New(&cfg,
		kernel.WithLogger(logger),
		kernel.WithObserver(observability.NoOpObserver{}),
		kernel.WithHistoryStore(stickyStore{Store: history.NewMemoryStore()}),
	)
	require.Error(t, err)

	assert.Contains(t, buf.String(), "close history store")
	assert.Contains(t, buf.String(), "disk went away")
}
