// Package notify implements the Notification Dispatcher: a best-effort
// fan-out to whichever external channels are configured (Telegram,
// Pushover), the same never-fails-the-caller posture the tool-call audit
// log and the DAG's run_events emission already follow.
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradeassist/engine/internal/domain"
)

// Severity mirrors internal/alerts' three-level scheme.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Notification is one outbound message, fanned out to every configured
// Channel.
type Notification struct {
	Title     string
	Message   string
	Severity  Severity
	RunID     string
	Metadata  map[string]interface{}
	Timestamp time.Time
}

// Channel is one outbound transport. Send should do its own I/O timeout
// bookkeeping; the Dispatcher does not impose one beyond its own ctx.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// EventRecorder persists one row per (channel, action) dispatch attempt
// for after-the-fact auditing. Best-effort: a recording failure is
// logged, never propagated.
type EventRecorder interface {
	RecordNotification(ctx context.Context, channel, status, action, runID, errText string) error
}

const sendTimeout = 10 * time.Second

// Dispatcher fans a Notification out to every configured Channel.
type Dispatcher struct {
	channels []Channel
	events   EventRecorder
}

func NewDispatcher(events EventRecorder, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, events: events}
}

// Send dispatches n to every channel, recording one notification_events
// row per channel. action labels what triggered the send (e.g.
// "eval_complete", "run_failed") for the audit trail.
func (d *Dispatcher) Send(ctx context.Context, action string, n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	for _, ch := range d.channels {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := ch.Send(sendCtx, n)
		cancel()

		status := "sent"
		errText := ""
		if err != nil {
			status = "failed"
			errText = err.Error()
			log.Error().Err(err).Str("channel", ch.Name()).Str("action", action).Msg("notify: send failed")
		}
		if d.events != nil {
			_ = d.events.RecordNotification(ctx, ch.Name(), status, action, n.RunID, errText)
		}
	}
}

// EmitEvalComplete satisfies dag.AnalyticsEmitter. A WARNING notification
// goes out only when at least one evaluator, of any kind, scored below 0.5;
// a run whose scores are all 0.5 or above sends nothing.
func (d *Dispatcher) EmitEvalComplete(runID string, results []domain.EvalResult) {
	var failed []domain.EvalResult
	for _, r := range results {
		if r.Score < 0.5 {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.EvalName)
	}

	d.Send(ctx, "eval_complete", Notification{
		Title:    "Run evaluation flagged issues",
		Message:  "Run " + runID + " had " + strconv.Itoa(len(failed)) + " evaluator(s) below threshold",
		Severity: SeverityWarning,
		RunID:    runID,
		Metadata: map[string]interface{}{"failed_evals": names},
	})
}
