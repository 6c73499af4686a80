package store

import (
	"context"
	"fmt"
)

// RecordNotification appends one row to the append-only
// notification_events audit table. Satisfies notify.EventRecorder.
func (s *Store) RecordNotification(ctx context.Context, channel, status, action, runID, errText string) error {
	var runIDArg interface{}
	if runID != "" {
		runIDArg = runID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_events (channel, status, action, run_id, error_text, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, channel, status, action, runIDArg, errText)
	if err != nil {
		return fmt.Errorf("store: record notification: %w", err)
	}
	return nil
}
