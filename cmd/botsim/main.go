// Command botsim replays a scripted sequence of webhook events against a
// running pulseboard server, standing in for the bots and automation runners
// that deliver events in production. Useful for demos and load-testing the
// intake path.
//
// The script is a YAML file whose keys use the wire field names:
//
//	events:
//	  - eventType: lead_capture
//	    botId: bot-1
//	    status: success
//	    action: lead_captured
//	    confidenceScore: 0.92
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

type script struct {
	Events []map[string]any `yaml:"events"`
}

func main() {
	target := flag.String("target", "http://localhost:8080", "base URL of the pulseboard server")
	path := flag.String("script", "events.yaml", "path to the event script")
	interval := flag.Duration("interval", 500*time.Millisecond, "delay between events")
	loop := flag.Bool("loop", false, "replay the script until interrupted")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	data, err := os.ReadFile(*path)
	if err != nil {
		slog.Error("read script", "path", *path, "err", err)
		os.Exit(1)
	}
	var sc script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		slog.Error("parse script", "path", *path, "err", err)
		os.Exit(1)
	}
	if len(sc.Events) == 0 {
		slog.Error("script contains no events", "path", *path)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	url := *target + "/webhook/intake"

	sent, failed := 0, 0
	for {
		for _, ev := range sc.Events {
			if ctx.Err() != nil {
				report(sent, failed)
				return
			}
			if err := post(ctx, client, url, ev); err != nil {
				failed++
				slog.Warn("send failed", "err", err)
			} else {
				sent++
			}
			select {
			case <-time.After(*interval):
			case <-ctx.Done():
			}
		}
		if !*loop {
			break
		}
	}
	report(sent, failed)
}

func post(ctx context.Context, client *http.Client, url string, ev map[string]any) error {
	// Stamp the send time unless the script pins one.
	if _, ok := ev["timestamp"]; !ok {
		ev["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func report(sent, failed int) {
	slog.Info("replay finished", "sent", sent, "failed", failed)
}
