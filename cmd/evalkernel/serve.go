package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/evalkernel/history"
	"github.com/tailored-agentic-units/evalkernel/kernel"
)

var (
	serveConfig     string
	serveIP         string
	serveShell      int
	serveIOPub      int
	serveStdin      int
	serveHB         int
	serveConnection string
	serveHistory    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a kernel and serve its channels",
	Long: `Run a kernel and serve its shell, IOPub, stdin and heartbeat channels.

SIGINT interrupts the running execution. SIGTERM stops the kernel. A
shutdown_request with restart set starts a fresh kernel on the same ports.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := kernel.DefaultConfig()
		if serveConfig != "" {
			loaded, err := kernel.LoadConfig(serveConfig)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = *loaded
		}

		cfg.Merge(&kernel.Config{
			ConnectionFile: serveConnection,
			Transport: kernel.TransportConfig{
				IP:        serveIP,
				ShellPort: serveShell,
				IOPubPort: serveIOPub,
				StdinPort: serveStdin,
				HBPort:    serveHB,
			},
		})
		if serveHistory != "" {
			cfg.History.Backend = history.BackendSQLite
			cfg.History.Path = serveHistory
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, newLogger())
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveConfig, "config", "", "Path to a JSON or YAML kernel config")
	f.StringVar(&serveIP, "ip", "", "Address to bind (overrides config)")
	f.IntVar(&serveShell, "shell-port", 0, "Shell port (overrides config)")
	f.IntVar(&serveIOPub, "iopub-port", 0, "IOPub port (overrides config)")
	f.IntVar(&serveStdin, "stdin-port", 0, "Stdin port (overrides config)")
	f.IntVar(&serveHB, "hb-port", 0, "Heartbeat port (overrides config)")
	f.StringVar(&serveConnection, "connection-file", "", "Write connection info to this path")
	f.StringVar(&serveHistory, "history", "", "Persist history to this SQLite file")
}

// serve runs kernels until one stops without asking for a restart.
func serve(ctx context.Context, cfg kernel.Config, logger *slog.Logger) error {
	for {
		k, err := kernel.New(&cfg, kernel.WithLogger(logger))
		if err != nil {
			return err
		}
		if err := k.Listen(); err != nil {
			k.Close()
			return err
		}

		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt)
		go func() {
			for range interrupts {
				k.Interrupt()
			}
		}()

		err = k.Serve(ctx)
		signal.Stop(interrupts)
		close(interrupts)

		if !errors.Is(err, kernel.ErrRestartRequested) {
			return err
		}

		info := k.Connection()
		cfg.Transport.ShellPort = info.ShellPort
		cfg.Transport.IOPubPort = info.IOPubPort
		cfg.Transport.StdinPort = info.StdinPort
		cfg.Transport.HBPort = info.HBPort
		logger.Info("restarting kernel", slog.String("session", info.Session))
	}
}
