// Package streaming publishes turn progress over mstream and owns the
// cancel handles that make a running turn interruptible.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mstream "github.com/haowjy/meridian-stream-go"

	"council/internal/domain"
)

// Emitter publishes progress for one turn. Implementations are safe for concurrent use.
type Emitter interface {
	Emit(eventType string, data interface{})
}

// Config controls stream behavior.
type Config struct {
	// Buffer is the number of undelivered events held per turn before new ones are dropped from the live stream.
	Buffer int
	// Retain is how many finished turns keep their event log for catchup.
	Retain int
	// Debug enables mstream event IDs.
	Debug bool
}

// DefaultConfig returns stream defaults.
func DefaultConfig() Config {
	return Config{Buffer: 256, Retain: 256}
}

// TurnStreams tracks running turns. Each turn gets an mstream stream that
// relays its events; the turn itself runs on the caller's goroutine.
type TurnStreams struct {
	registry *mstream.Registry
	cfg      Config
	logger   *slog.Logger

	mu       sync.Mutex
	running  map[string]*turnRun
	logs     map[string][]Event
	finished []string // oldest first; bounded by cfg.Retain
}

type turnRun struct {
	cancel context.CancelFunc
	stream *mstream.Stream
}

// NewTurnStreams creates the tracker.
func NewTurnStreams(registry *mstream.Registry, cfg Config, logger *slog.Logger) *TurnStreams {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}
	if cfg.Retain <= 0 {
		cfg.Retain = DefaultConfig().Retain
	}
	return &TurnStreams{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		running:  make(map[string]*turnRun),
		logs:     make(map[string][]Event),
	}
}

// Run executes work as turn turnID. The context passed to work is canceled
// when ctx is, or when Interrupt(turnID) is called. Returns a ConflictError
// if a turn with the same id is already running.
func (s *TurnStreams) Run(ctx context.Context, turnID string, work func(ctx context.Context, emit Emitter) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	live := make(chan mstream.Event, s.cfg.Buffer)
	stream := mstream.NewStream(
		turnID,
		func(streamCtx context.Context, send func(mstream.Event)) error {
			for {
				select {
				case ev, ok := <-live:
					if !ok {
						return nil
					}
					send(ev)
				case <-streamCtx.Done():
					return streamCtx.Err()
				}
			}
		},
		mstream.WithCatchup(s.catchup),
		mstream.WithEventIDs(s.cfg.Debug),
	)

	s.mu.Lock()
	if _, exists := s.running[turnID]; exists {
		s.mu.Unlock()
		return &domain.ConflictError{
			Message:      fmt.Sprintf("turn %s is already running", turnID),
			ResourceType: "turn",
			ResourceID:   turnID,
		}
	}
	s.running[turnID] = &turnRun{cancel: cancel, stream: stream}
	s.logs[turnID] = nil
	s.mu.Unlock()

	// A finished stream with a reused ID stays registered until cleanup
	s.registry.Remove(turnID)
	if err := s.registry.Register(stream); err != nil {
		s.logger.Warn("stream registration failed", "turn_id", turnID, "error", err)
	}
	stream.Start()

	emitter := &turnEmitter{streams: s, turnID: turnID, live: live}
	defer s.finish(turnID, emitter)

	return work(runCtx, emitter)
}

// Interrupt cancels a running turn. Returns domain.ErrNotFound if turnID is not running.
func (s *TurnStreams) Interrupt(turnID string) error {
	s.mu.Lock()
	run, ok := s.running[turnID]
	s.mu.Unlock()
	if !ok {
		return &domain.NotFoundError{Message: fmt.Sprintf("turn %s is not running", turnID)}
	}

	run.cancel()
	run.stream.Cancel()
	s.logger.Info("turn interrupted", "turn_id", turnID)
	return nil
}

// Running reports whether turnID is in progress.
func (s *TurnStreams) Running(turnID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[turnID]
	return ok
}

// Events returns the recorded events of a running or recently finished turn.
func (s *TurnStreams) Events(turnID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, ok := s.logs[turnID]
	if !ok {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("no events for turn %s", turnID)}
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out, nil
}

func (s *TurnStreams) finish(turnID string, emitter *turnEmitter) {
	emitter.close()

	s.mu.Lock()
	delete(s.running, turnID)
	// A reused turn ID moves to the back so eviction never drops the new log
	for i, id := range s.finished {
		if id == turnID {
			s.finished = append(s.finished[:i], s.finished[i+1:]...)
			break
		}
	}
	s.finished = append(s.finished, turnID)
	for len(s.finished) > s.cfg.Retain {
		delete(s.logs, s.finished[0])
		s.finished = s.finished[1:]
	}
	s.mu.Unlock()
}

// catchup replays recorded events after lastEventID ("" replays everything).
func (s *TurnStreams) catchup(streamID string, lastEventID string) ([]mstream.Event, error) {
	events, err := s.Events(streamID)
	if err != nil {
		return nil, err
	}

	var after int
	if lastEventID != "" {
		if _, err := fmt.Sscanf(lastEventID, "%d", &after); err != nil {
			after = 0
		}
	}

	out := make([]mstream.Event, 0, len(events))
	for _, ev := range events {
		if ev.Seq <= after {
			continue
		}
		raw, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("marshal event %d: %w", ev.Seq, err)
		}
		out = append(out, mstream.NewEvent(raw).WithType(ev.Type))
	}
	return out, nil
}

type turnEmitter struct {
	streams *TurnStreams
	turnID  string

	mu     sync.Mutex
	seq    int
	live   chan mstream.Event
	closed bool
}

func (e *turnEmitter) Emit(eventType string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	e.seq++
	ev := Event{Seq: e.seq, Type: eventType, TurnID: e.turnID, Data: data, CreatedAt: time.Now().UTC()}

	e.streams.mu.Lock()
	e.streams.logs[e.turnID] = append(e.streams.logs[e.turnID], ev)
	e.streams.mu.Unlock()

	raw, err := json.Marshal(ev)
	if err != nil {
		e.streams.logger.Error("failed to marshal event data", "error", err, "event_type", eventType, "turn_id", e.turnID)
		return
	}

	select {
	case e.live <- mstream.NewEvent(raw).WithType(eventType):
	default:
		e.streams.logger.Warn("stream buffer full, event kept for catchup only", "event_type", eventType, "turn_id", e.turnID)
	}
}

func (e *turnEmitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.live)
	}
}
