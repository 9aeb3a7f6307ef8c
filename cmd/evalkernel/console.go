package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/evalkernel/client"
	"github.com/tailored-agentic-units/evalkernel/protocol"
)

var (
	consoleShell      string
	consoleConnection string
	consoleUsername   string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Line-based frontend for a running kernel",
	Long: `Connect to a running kernel and execute one line per request.

Broadcast output is printed as it arrives. Input requests raised by this
console's executions are answered from the terminal. The console exits when
stdin closes, on "%exit", or when the kernel stops answering heartbeats.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := client.DefaultConfig()
		cfg.Merge(&client.Config{Username: consoleUsername})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var (
			c   *client.Client
			err error
		)
		switch {
		case consoleConnection != "":
			c, err = client.DialConnectionFile(ctx, consoleConnection, &cfg)
		case consoleShell != "":
			c, err = client.Dial(ctx, consoleShell, &cfg)
		default:
			return errors.New("one of --shell or --connection-file is required")
		}
		if err != nil {
			return err
		}
		defer c.Close()

		return runConsole(ctx, c, os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	f := consoleCmd.Flags()
	f.StringVar(&consoleShell, "shell", "", "Shell URL, for example http://127.0.0.1:5001")
	f.StringVar(&consoleConnection, "connection-file", "", "Connection file written by serve")
	f.StringVar(&consoleUsername, "username", "", "Username sent in message headers")
}

func runConsole(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.IOPub(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()
	go printBroadcasts(stream, c.Session().ID(), out)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	stdin, err := c.Stdin(ctx)
	if err != nil {
		return err
	}
	defer stdin.Close()
	go stdin.Serve(ctx, func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		line, ok := <-lines
		if !ok {
			return "", io.EOF
		}
		return line, nil
	})

	monitor := c.Monitor(func() {
		fmt.Fprintln(out, "kernel died")
		cancel()
	})
	go monitor.Run(ctx)

	for count := 1; ; {
		fmt.Fprintf(out, "In [%d]: ", count)

		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		if strings.TrimSpace(line) == "%exit" {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		reply, err := c.Execute(ctx, protocol.ExecuteRequestContent{Code: line})
		if err != nil {
			if errors.Is(err, client.ErrKernelClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if reply.Status == protocol.StatusAbort {
			fmt.Fprintln(out, "aborted")
		}
		count = reply.ExecutionCount + 1
	}
}

// printBroadcasts writes the output broadcasts of this console's executions.
func printBroadcasts(stream *client.Stream, session string, out io.Writer) {
	for {
		env, err := stream.Next()
		if err != nil {
			return
		}
		if env.MsgType != protocol.Crash && env.ParentHeader.Session != session {
			continue
		}

		switch env.MsgType {
		case protocol.Stream:
			var content protocol.StreamContent
			if env.Decode(&content) == nil {
				fmt.Fprint(out, content.Data)
			}
		case protocol.PyOut:
			var content protocol.PyOutContent
			if env.Decode(&content) == nil {
				fmt.Fprintf(out, "Out[%d]: %v\n", content.ExecutionCount, content.Data[protocol.MIMEPlainText])
			}
		case protocol.DisplayData:
			var content protocol.DisplayDataContent
			if env.Decode(&content) == nil {
				fmt.Fprintln(out, content.Data[protocol.MIMEPlainText])
			}
		case protocol.PyErr:
			var content protocol.PyErrContent
			if env.Decode(&content) != nil {
				continue
			}
			if len(content.Traceback) == 0 {
				fmt.Fprintf(out, "%s: %s\n", content.EName, content.EValue)
				continue
			}
			fmt.Fprintln(out, strings.Join(content.Traceback, "\n"))
		case protocol.Crash:
			var content protocol.CrashContent
			if env.Decode(&content) == nil {
				fmt.Fprintf(out, "kernel crashed: %s: %s\n", content.EName, content.EValue)
			}
		}
	}
}
