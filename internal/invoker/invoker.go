// Package invoker is the external once-a-minute caller of the reminder sweep
// endpoint. The sweep itself keeps no schedule of its own.
package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"prayer-push-go/internal/models"
)

type Invoker struct {
	url        string
	serviceKey string
	client     *http.Client
	log        *slog.Logger
}

func New(url, serviceKey string, client *http.Client, log *slog.Logger) *Invoker {
	if client == nil {
		client = &http.Client{Timeout: 50 * time.Second}
	}
	return &Invoker{url: url, serviceKey: serviceKey, client: client, log: log}
}

// Trigger calls the sweep endpoint once.
func (i *Invoker) Trigger(ctx context.Context) (models.SweepResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.url, nil)
	if err != nil {
		return models.SweepResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+i.serviceKey)

	resp, err := i.client.Do(req)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("trigger reminders: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("read sweep response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.SweepResult{}, fmt.Errorf("sweep endpoint responded %d: %s", resp.StatusCode, body)
	}

	var result models.SweepResult
	if err := json.Unmarshal(body, &result); err != nil {
		return models.SweepResult{}, fmt.Errorf("decode sweep response: %w", err)
	}
	return result, nil
}

// Run triggers on schedule until ctx ends. Overlapping ticks are skipped; the
// sweep's same-day check covers the rest.
func (i *Invoker) Run(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		result, err := i.Trigger(ctx)
		if err != nil {
			i.log.ErrorContext(ctx, "Reminder trigger failed", slog.Any("error", err))
			return
		}
		i.log.InfoContext(ctx, "Reminder sweep triggered",
			slog.String("time", result.Time),
			slog.Int("sent", result.Sent),
			slog.Int("push_sent", result.PushSent),
			slog.Int("skipped", result.Skipped))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	i.log.Info("Reminder invoker started", slog.String("schedule", schedule), slog.String("url", i.url))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
