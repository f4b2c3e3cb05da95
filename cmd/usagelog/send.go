package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/usagelog"
	"github.com/loykin/usagelog/internal/config"
	"github.com/loykin/usagelog/internal/logger"
)

func createSendCommand(globalFlags *GlobalFlags) *cobra.Command {
	sendFlags := &SendFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Record one event and flush it",
		Long: `Record one event and flush it to the client sink.

With --durable the event is opened, held for the given duration and closed
with the --close fields; its payload then carries "duration" in ms.

Examples:
  usagelog send --type="Delete object" --payload='{"count":3}'
  usagelog send --type="Save job" --durable=2s --close='{"outcome":"ok"}'
  usagelog send --type="Zoom image" --collector=http://localhost:8080/api/logs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sendFlags.ConfigPath = globalFlags.ConfigPath
			return runSend(cmd.Context(), *sendFlags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&sendFlags.Type, "type", "", "event type, e.g. \"Zoom image\" (required)")
	cmd.Flags().StringVar(&sendFlags.Payload, "payload", "", "event payload as a JSON object")
	cmd.Flags().DurationVar(&sendFlags.Durable, "durable", 0, "hold the event open for this long before closing it")
	cmd.Flags().StringVar(&sendFlags.Close, "close", "", "fields merged in at close, as a JSON object (with --durable)")
	cmd.Flags().StringVar(&sendFlags.Collector, "collector", "", "sink DSN (overrides [client].sink)")
	cmd.Flags().DurationVar(&sendFlags.Timeout, "timeout", 10*time.Second, "flush timeout")

	if err := cmd.MarkFlagRequired("type"); err != nil {
		panic(err)
	}
	return cmd
}

func runSend(ctx context.Context, flags SendFlags, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	client := cfg.Client
	if flags.Collector != "" {
		client.Sink = flags.Collector
	}
	// one-shot: flushed explicitly below
	client.FlushSchedule = ""

	payload, err := parseObject("payload", flags.Payload)
	if err != nil {
		return err
	}
	closeFields, err := parseObject("close", flags.Close)
	if err != nil {
		return err
	}
	if flags.Close != "" && flags.Durable <= 0 {
		return errors.New("--close requires --durable")
	}

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	store, err := usagelog.NewFromConfig(client, log, nil)
	if err != nil {
		return err
	}

	t := usagelog.Type(flags.Type)
	if flags.Durable > 0 {
		p, err := store.OpenDurable(t, payload)
		if err != nil {
			_ = store.Shutdown(ctx)
			return err
		}
		select {
		case <-time.After(flags.Durable):
		case <-ctx.Done():
			_ = store.Shutdown(context.Background())
			return ctx.Err()
		}
		if _, err := p.Close(closeFields); err != nil {
			_ = store.Shutdown(ctx)
			return err
		}
	} else if _, err := store.Open(t, payload); err != nil {
		_ = store.Shutdown(ctx)
		return err
	}

	n := store.Len()
	flushCtx, cancel := context.WithTimeout(ctx, flags.Timeout)
	defer cancel()
	if err := store.Shutdown(flushCtx); err != nil {
		return err
	}
	log.Debug("event sent", slog.String("type", flags.Type), slog.String("sink", client.Sink))
	_, _ = fmt.Fprintf(out, "sent %d record(s) to %s (session %s)\n", n, client.Sink, store.SessionID())
	return nil
}

// parseObject decodes a JSON object keeping numbers as json.Number so
// integer fields pass the type rules.
func parseObject(name, s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", name, err)
	}
	if m == nil {
		return nil, fmt.Errorf("--%s must be a JSON object", name)
	}
	return m, nil
}
