// Package events carries ledger state-change notifications to external
// consumers. Publishing is fire-and-forget: a failed sink never undoes the
// mutation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/atmx/paper-ledger/internal/metrics"
)

// Event names.
const (
	ConfigInitialized  = "ConfigInitialized"
	AccountInitialized = "AccountInitialized"
	PredictionMade     = "PredictionMade"
	PositionClosed     = "PositionClosed"
)

// Event is a structured notification emitted after a mutation commits.
type Event struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Owner     string         `json:"owner"`
	Timestamp int64          `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// New builds an event with a fresh ID.
func New(name, owner string, ts int64, fields map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Name:      name,
		Owner:     owner,
		Timestamp: ts,
		Fields:    fields,
	}
}

// Marshal encodes the event as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher is implemented by every event sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	// Name identifies the sink in logs and metrics (e.g. "kafka").
	Name() string
}

// Fanout delivers each event to every registered sink. A failing sink is
// logged and counted but does not stop delivery to the others.
type Fanout struct {
	sinks  []Publisher
	logger *slog.Logger
}

// NewFanout creates a dispatcher over sinks.
func NewFanout(logger *slog.Logger, sinks ...Publisher) *Fanout {
	return &Fanout{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "events")),
	}
}

// Add registers another sink.
func (f *Fanout) Add(p Publisher) {
	f.sinks = append(f.sinks, p)
}

func (f *Fanout) Name() string { return "fanout" }

// Publish sends e to all sinks and returns a combined error naming the
// sinks that failed.
func (f *Fanout) Publish(ctx context.Context, e Event) error {
	var errs []string
	for _, s := range f.sinks {
		if err := s.Publish(ctx, e); err != nil {
			metrics.EventsPublished.WithLabelValues(s.Name(), "error").Inc()
			f.logger.ErrorContext(ctx, "event sink failed",
				slog.String("sink", s.Name()),
				slog.String("event", e.Name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		metrics.EventsPublished.WithLabelValues(s.Name(), "ok").Inc()
	}
	if len(errs) > 0 {
		return fmt.Errorf("events: %d sink(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// LogPublisher writes every event to the structured log.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a sink that logs events at INFO.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	attrs := []any{
		slog.String("event_id", e.ID),
		slog.String("owner", e.Owner),
		slog.Int64("timestamp", e.Timestamp),
	}
	for k, v := range e.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	p.logger.InfoContext(ctx, e.Name, attrs...)
	return nil
}

// Recorder keeps published events in memory. Used in tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
	return nil
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Events)
}

// Last returns the most recent event, or the zero Event.
func (r *Recorder) Last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Events) == 0 {
		return Event{}
	}
	return r.Events[len(r.Events)-1]
}
