// Package querysession runs the ask pipeline of one operator session:
// resolve the connection, translate the question, execute it and record the
// outcome as a chat turn.
package querysession

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dracory/insightpilot/internal/nl2sql"
	"github.com/dracory/insightpilot/internal/observability"
	"github.com/dracory/insightpilot/internal/resultset"
	"github.com/dracory/insightpilot/shared/driver"
	"github.com/dracory/insightpilot/shared/types"
)

const DefaultQueryTimeout = 30 * time.Second

// Registry is the part of the connection registry a session reads.
type Registry interface {
	Get(id string) (types.ConnectionProfile, error)
}

// State is a step of the ask pipeline.
type State string

const (
	StateIdle        State = "idle"
	StateTranslating State = "translating"
	StateExecuting   State = "executing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Turn is one question and its outcome. Turns are immutable once recorded.
type Turn struct {
	ID           string               `json:"id"`
	ConnectionID string               `json:"connection_id"`
	Utterance    string               `json:"utterance"`
	Query        string               `json:"query,omitempty"`
	Dialect      types.BackendKind    `json:"dialect"`
	Provider     string               `json:"provider,omitempty"`
	State        State                `json:"state"`
	Result       *resultset.ResultSet `json:"result,omitempty"`
	Err          error                `json:"-"`
	Error        string               `json:"error,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	Duration     time.Duration        `json:"duration_ns"`
}

// Options configures a Session.
type Options struct {
	QueryTimeout time.Duration
	Logger       *slog.Logger
}

// Session is one operator's conversation. It processes one Ask at a time.
type Session struct {
	reg    Registry
	tr     nl2sql.Translator
	drv    driver.Driver
	opts   Options
	logger *slog.Logger

	busy atomic.Bool

	mu    sync.RWMutex
	turns []Turn
	state State
	// last table listing per connection, passed to the translator
	tables map[string][]string
}

// New creates an empty session.
func New(reg Registry, tr nl2sql.Translator, drv driver.Driver, opts Options) *Session {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		reg:    reg,
		tr:     tr,
		drv:    drv,
		opts:   opts,
		logger: logger,
		state:  StateIdle,
		tables: map[string][]string{},
	}
}

// Ask translates utterance, runs it on the connection and records the turn.
// A missing or not connected profile fails without recording anything;
// translation and execution failures are recorded as failed turns and
// returned with the turn.
func (s *Session) Ask(ctx context.Context, connectionID, utterance string, tableHint *string) (Turn, error) {
	if !s.busy.CompareAndSwap(false, true) {
		observability.RecordAsk(observability.OutcomeBusy, "")
		return Turn{}, types.ErrSessionBusy("a previous question is still running")
	}
	defer s.busy.Store(false)
	defer s.setState(StateIdle)

	profile, err := s.reg.Get(connectionID)
	if err != nil || profile.Status != types.StatusConnected {
		observability.RecordAsk(observability.OutcomeNoConnection, "")
		if err != nil {
			return Turn{}, types.ErrNoActiveConnection("connection %q not found", connectionID)
		}
		return Turn{}, types.ErrNoActiveConnection("connection %q is %s, test it first", connectionID, profile.Status)
	}

	start := time.Now()
	turn := Turn{
		ID:           uuid.Must(uuid.NewV7()).String(),
		ConnectionID: connectionID,
		Utterance:    utterance,
		Dialect:      profile.Kind,
		CreatedAt:    start.UTC(),
	}

	s.setState(StateTranslating)
	translated, err := s.tr.Translate(ctx, nl2sql.Request{
		Utterance: utterance,
		TableHint: tableHint,
		Dialect:   profile.Kind,
		Tables:    s.knownTables(connectionID),
	})
	if err != nil {
		return s.fail(turn, start, err)
	}
	turn.Query = translated.SQL
	turn.Provider = translated.Provider

	s.setState(StateExecuting)
	rs, err := s.execute(ctx, profile, translated.SQL)
	if err != nil {
		return s.fail(turn, start, types.ErrBackendExecution(err, "query failed"))
	}

	turn.State = StateCompleted
	turn.Result = rs
	turn.Duration = time.Since(start)
	s.setState(StateCompleted)
	s.append(turn)
	observability.RecordAsk(observability.OutcomeCompleted, turn.Provider)
	s.logger.Info("question answered",
		"turn", turn.ID, "connection", connectionID, "provider", turn.Provider,
		"rows", rs.RowCount, "duration", turn.Duration)
	return turn, nil
}

func (s *Session) execute(ctx context.Context, profile types.ConnectionProfile, query string) (*resultset.ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	start := time.Now()
	defer func() { observability.ObserveExecution(string(profile.Kind), time.Since(start)) }()

	h, err := s.drv.Connect(ctx, profile)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			s.logger.Debug("close connection", "connection", profile.ID, "error", cerr)
		}
	}()

	rs, err := h.Execute(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, errors.Join(err, ctxErr)
		}
		return nil, err
	}
	return rs, nil
}

func (s *Session) fail(turn Turn, start time.Time, err error) (Turn, error) {
	turn.State = StateFailed
	turn.Err = err
	turn.Error = err.Error()
	turn.Duration = time.Since(start)
	s.setState(StateFailed)
	s.append(turn)
	observability.RecordAsk(observability.OutcomeFailed, turn.Provider)
	s.logger.Warn("question failed", "turn", turn.ID, "connection", turn.ConnectionID, "error", err)
	return turn, err
}

// Tables lists the tables of a connected profile.
func (s *Session) Tables(ctx context.Context, connectionID string) ([]string, error) {
	profile, err := s.reg.Get(connectionID)
	if err != nil {
		return nil, err
	}
	if profile.Status != types.StatusConnected {
		return nil, types.ErrNoActiveConnection("connection %q is %s, test it first", connectionID, profile.Status)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	h, err := s.drv.Connect(ctx, profile)
	if err != nil {
		return nil, types.ErrBackendExecution(err, "connect")
	}
	defer h.Close()

	tables, err := h.Tables(ctx)
	if err != nil {
		return nil, types.ErrBackendExecution(err, "list tables")
	}

	s.mu.Lock()
	s.tables[connectionID] = append([]string(nil), tables...)
	s.mu.Unlock()
	return tables, nil
}

func (s *Session) knownTables(connectionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tables[connectionID]...)
}

// Turns returns the recorded turns in completion order.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Turn returns the recorded turn with the given id.
func (s *Session) Turn(id string) (Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.turns {
		if t.ID == id {
			return t, nil
		}
	}
	return Turn{}, types.ErrNotFound("turn %q not found", id)
}

// LastTurn returns the most recent turn.
func (s *Session) LastTurn() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Export renders the result of a turn as delimited text. An empty turnID
// selects the last turn.
func (s *Session) Export(turnID string, delimiter rune) (string, error) {
	var (
		turn Turn
		err  error
	)
	if turnID == "" {
		var ok bool
		if turn, ok = s.LastTurn(); !ok {
			return "", types.ErrNothingToExport("no questions asked yet")
		}
	} else if turn, err = s.Turn(turnID); err != nil {
		return "", err
	}
	if turn.Result == nil {
		return "", types.ErrNothingToExport("turn %q has no result", turn.ID)
	}
	return resultset.ToDelimitedText(turn.Result, delimiter)
}

// State returns the current pipeline step.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	if prev != state {
		s.logger.Debug("session state", "from", prev, "to", state)
	}
}

func (s *Session) append(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}
