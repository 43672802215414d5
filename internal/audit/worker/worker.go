// Package worker ships audit events from the outbox table to Kafka. Rows are
// marked published only after the broker acknowledges, so delivery is
// at-least-once; consumers dedupe on event ID.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Worker polls the outbox and produces pending rows to one Kafka topic.
type Worker struct {
	db       *sql.DB
	client   *kgo.Client
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func New(db *sql.DB, client *kgo.Client, topic string, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		db:       db,
		client:   client,
		topic:    topic,
		interval: interval,
		batch:    100,
		logger:   logger,
	}
}

// EnsureTopic creates the audit topic when it does not exist yet. Safe to call
// on every startup.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, partitions, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create audit topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id      string
	payload []byte
}

func (w *Worker) drainOnce(ctx context.Context) error {
	rows, err := w.db.QueryContext(ctx, `
		SELECT id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, w.batch)
	if err != nil {
		return fmt.Errorf("select outbox rows: %w", err)
	}
	defer rows.Close()

	var pending []outboxRow
	for rows.Next() {
		var r outboxRow
		if err := rows.Scan(&r.id, &r.payload); err != nil {
			return fmt.Errorf("scan outbox row: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox rows: %w", err)
	}

	for _, row := range pending {
		record := &kgo.Record{
			Topic: w.topic,
			Key:   []byte(row.id),
			Value: row.payload,
		}
		if err := w.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			return fmt.Errorf("produce audit event %s: %w", row.id, err)
		}
		if _, err := w.db.ExecContext(ctx, `
			UPDATE outbox SET published_at = NOW() WHERE id = $1
		`, row.id); err != nil {
			return fmt.Errorf("mark outbox row %s published: %w", row.id, err)
		}
	}
	return nil
}
