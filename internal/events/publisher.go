// Package events publishes evaluation results to an AMQP topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/pavelanni/grader/internal/model"
)

// Routing keys.
const (
	EvaluationCompleted = "evaluation.completed"
	EvaluationFailed    = "evaluation.failed"
)

// Event is the message body.
type Event struct {
	Type       string            `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    EvaluationPayload `json:"payload"`
}

// EvaluationPayload describes one finished answer sheet.
type EvaluationPayload struct {
	QuestionBankID     int64        `json:"question_bank_id"`
	EvaluationID       int64        `json:"evaluation_id,omitempty"`
	StudentName        string       `json:"student_name"`
	FileName           string       `json:"file_name,omitempty"`
	TotalMarksObtained int          `json:"total_marks_obtained"`
	TotalMarksPossible int          `json:"total_marks_possible"`
	Percentage         float64      `json:"percentage"`
	Status             model.Status `json:"status"`
	Error              string       `json:"error,omitempty"`
}

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends evaluation events. Publish is safe for concurrent use.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  channel
	exchange string
	now      func() time.Time
}

// NewPublisher dials url and declares a durable topic exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p := newPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string) *Publisher {
	return &Publisher{channel: ch, exchange: exchange, now: time.Now}
}

// NewEvent builds the event for a finished outcome.
func NewEvent(bankID int64, out model.EvaluationOutcome, at time.Time) Event {
	typ := EvaluationCompleted
	if out.Status != model.StatusCompleted {
		typ = EvaluationFailed
	}
	return Event{
		Type:       typ,
		OccurredAt: at.UTC(),
		Payload: EvaluationPayload{
			QuestionBankID:     bankID,
			EvaluationID:       out.EvaluationID,
			StudentName:        out.StudentName,
			FileName:           out.FileName,
			TotalMarksObtained: out.TotalMarksObtained,
			TotalMarksPossible: out.TotalMarksPossible,
			Percentage:         out.Percentage,
			Status:             out.Status,
			Error:              out.Error,
		},
	}
}

// Notify publishes the outcome of one answer sheet. The event type is
// used as the routing key.
func (p *Publisher) Notify(ctx context.Context, bankID int64, out model.EvaluationOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := NewEvent(bankID, out, p.now())
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.Publish(
		p.exchange,
		ev.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	slog.Debug("event published", "type", ev.Type, "student", out.StudentName)
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	if p.channel != nil {
		first = p.channel.Close()
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
