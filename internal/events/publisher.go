package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// BatchStarted announces that a batch run has begun.
type BatchStarted struct {
	BatchID   string    `json:"batch_id"`
	SessionID string    `json:"session_id,omitempty"`
	Units     int       `json:"units"`
	StartedAt time.Time `json:"started_at"`
}

// UnitProcessed reports the terminal status of a single batch unit.
type UnitProcessed struct {
	BatchID     string    `json:"batch_id"`
	UnitIndex   int       `json:"unit_index"`
	Document    string    `json:"document"`
	Status      string    `json:"status"`
	StudentID   string    `json:"student_id,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// BatchCompleted summarises a finished batch run.
type BatchCompleted struct {
	BatchID     string    `json:"batch_id"`
	Succeeded   int       `json:"succeeded"`
	NeedsReview int       `json:"needs_review"`
	Failed      int       `json:"failed"`
	CompletedAt time.Time `json:"completed_at"`
}

// Publisher emits batch lifecycle events over NATS. A nil connection turns
// every publish into a no-op so the pipeline runs unchanged without a broker.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewPublisher constructs a publisher rooted at the given subject base,
// typically "scriptmark.batch".
func NewPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) *Publisher {
	if subject == "" {
		subject = "scriptmark.batch"
	}
	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "events").Logger(),
	}
}

// BatchStarted publishes a batch start event.
func (p *Publisher) BatchStarted(ev BatchStarted) {
	p.publish("started", ev)
}

// UnitProcessed publishes a per-unit outcome event.
func (p *Publisher) UnitProcessed(ev UnitProcessed) {
	p.publish("unit", ev)
}

// BatchCompleted publishes a batch completion event.
func (p *Publisher) BatchCompleted(ev BatchCompleted) {
	p.publish("completed", ev)
}

// publish is fire-and-forget: event delivery is advisory and never fails a
// batch run. A nil receiver or connection is a no-op.
func (p *Publisher) publish(suffix string, ev any) {
	if p == nil || p.conn == nil {
		return
	}
	subject := p.subject + "." + suffix
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("encode batch event")
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("publish batch event")
	}
}
