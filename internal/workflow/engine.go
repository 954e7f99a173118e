// Package workflow runs a pre-planned, ordered list of operations as one unit.
// Steps run strictly in order. A transient failure is retried with exponential
// backoff; any other failure stops the run. Results of completed steps are kept.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finance-assistant/internal/core"
)

// StepState is the lifecycle of one step.
type StepState string

const (
	StatePending         StepState = "PENDING"
	StateRunning         StepState = "RUNNING"
	StateSucceeded       StepState = "SUCCEEDED"
	StateFailedRetriable StepState = "FAILED_RETRIABLE"
	StateFailedFatal     StepState = "FAILED_FATAL"
)

// Status is the overall state of an execution.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusPartial   Status = "PARTIAL"
)

// StepRecord tracks one step through its attempts.
type StepRecord struct {
	Index    int       `json:"index"`
	Kind     Kind      `json:"kind"`
	State    StepState `json:"state"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
}

// Execution is the in-memory record of one workflow run. It is never persisted.
type Execution struct {
	RunID          uuid.UUID      `json:"run_id"`
	Name           string         `json:"name,omitempty"`
	Status         Status         `json:"status"`
	Success        bool           `json:"success"`
	CompletedSteps int            `json:"completed_steps"`
	Steps          []StepRecord   `json:"steps"`
	Results        map[int]any    `json:"results"`
	Errors         map[int]string `json:"errors"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// Handlers executes each step variant. A nil handler makes its variant fail fatally.
type Handlers struct {
	CreateInvoice   func(ctx context.Context, userID string, s CreateInvoiceStep) (any, error)
	LogExpense      func(ctx context.Context, userID string, s LogExpenseStep) (any, error)
	GenerateReport  func(ctx context.Context, userID string, s GenerateReportStep) (any, error)
	MarkInvoicePaid func(ctx context.Context, userID string, s MarkInvoicePaidStep) (any, error)
}

// Config holds retry settings.
type Config struct {
	// MaxAttempts is the number of tries per step, the first included.
	MaxAttempts int
	// BaseDelay is the wait before the first retry; it doubles on every retry after.
	BaseDelay time.Duration
}

// DefaultConfig returns three attempts with a 500ms base delay.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine runs workflows. It is safe for concurrent use; each Run is independent.
type Engine struct {
	handlers Handlers
	cfg      Config
	sleep    SleepFunc
	describe func(error) string
	now      func() time.Time
	log      *zap.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithSleep replaces the real-time wait between retries.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithErrorText controls how a step error is written into Execution.Errors.
func WithErrorText(fn func(error) string) Option {
	return func(e *Engine) { e.describe = fn }
}

// NewEngine builds an engine. Zero config values fall back to DefaultConfig.
func NewEngine(h Handlers, cfg Config, log *zap.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		handlers: h,
		cfg:      cfg,
		sleep:    sleepContext,
		describe: func(err error) string { return err.Error() },
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff is the wait after the failed attempt with zero-based index attempt:
// base × 2^attempt.
func (e *Engine) Backoff(attempt int) time.Duration {
	return e.cfg.BaseDelay * time.Duration(1<<uint(attempt))
}

// RunDefinition runs a parsed definition.
func (e *Engine) RunDefinition(ctx context.Context, userID string, def *Definition) (*Execution, error) {
	exec, err := e.Run(ctx, userID, def.Steps)
	if exec != nil {
		exec.Name = def.Name
	}
	return exec, err
}

// Run executes steps in order. The returned error is non-nil only when there is
// nothing to run; step failures are reported in the Execution.
func (e *Engine) Run(ctx context.Context, userID string, steps []Step) (*Execution, error) {
	if len(steps) == 0 {
		return nil, core.NewValidationError("steps", "a workflow needs at least one step")
	}

	exec := &Execution{
		RunID:     uuid.New(),
		Status:    StatusRunning,
		Steps:     make([]StepRecord, len(steps)),
		Results:   make(map[int]any),
		Errors:    make(map[int]string),
		StartedAt: e.now(),
	}
	for i, s := range steps {
		exec.Steps[i] = StepRecord{Index: i, Kind: s.Kind(), State: StatePending}
	}
	log := e.log.With(zap.String("run_id", exec.RunID.String()), zap.String("user_id", userID))
	log.Info("workflow started", zap.Int("steps", len(steps)))

	for i, s := range steps {
		rec := &exec.Steps[i]
		result, err := e.runStep(ctx, userID, s, rec, log)
		if err != nil {
			exec.Errors[i] = e.describe(err)
			break
		}
		exec.Results[i] = result
		exec.CompletedSteps++
	}

	exec.Success = exec.CompletedSteps == len(steps)
	if exec.Success {
		exec.Status = StatusCompleted
	} else {
		exec.Status = StatusPartial
	}
	exec.FinishedAt = e.now()
	log.Info("workflow finished",
		zap.String("status", string(exec.Status)),
		zap.Int("completed_steps", exec.CompletedSteps),
		zap.Duration("duration", exec.FinishedAt.Sub(exec.StartedAt)),
	)
	return exec, nil
}

// runStep drives one step through its attempts and leaves rec in a terminal state.
func (e *Engine) runStep(ctx context.Context, userID string, s Step, rec *StepRecord, log *zap.Logger) (any, error) {
	for attempt := 0; ; attempt++ {
		rec.State = StateRunning
		rec.Attempts = attempt + 1

		result, err := e.dispatch(ctx, userID, s)
		if err == nil {
			rec.State = StateSucceeded
			rec.Error = ""
			return result, nil
		}
		rec.Error = e.describe(err)

		if !core.IsTransient(err) {
			rec.State = StateFailedFatal
			log.Warn("workflow step failed",
				zap.Int("step", rec.Index), zap.String("kind", string(rec.Kind)), zap.Error(err))
			return nil, err
		}

		rec.State = StateFailedRetriable
		if rec.Attempts >= e.cfg.MaxAttempts {
			log.Warn("workflow step retries exhausted",
				zap.Int("step", rec.Index), zap.Int("attempts", rec.Attempts), zap.Error(err))
			return nil, fmt.Errorf("step %d gave up after %d attempts: %w", rec.Index, rec.Attempts, err)
		}

		delay := e.Backoff(attempt)
		log.Info("workflow step retrying",
			zap.Int("step", rec.Index), zap.Int("attempt", rec.Attempts), zap.Duration("delay", delay), zap.Error(err))
		if serr := e.sleep(ctx, delay); serr != nil {
			return nil, fmt.Errorf("step %d interrupted: %w", rec.Index, serr)
		}
	}
}

// dispatch matches the step variant to its handler. A panic in a handler becomes
// an internal error so one bad step cannot take down the process.
func (e *Engine) dispatch(ctx context.Context, userID string, s Step) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: step %s panicked: %v", core.ErrInternal, s.Kind(), r)
		}
	}()

	switch st := s.(type) {
	case CreateInvoiceStep:
		if e.handlers.CreateInvoice != nil {
			return e.handlers.CreateInvoice(ctx, userID, st)
		}
	case LogExpenseStep:
		if e.handlers.LogExpense != nil {
			return e.handlers.LogExpense(ctx, userID, st)
		}
	case GenerateReportStep:
		if e.handlers.GenerateReport != nil {
			return e.handlers.GenerateReport(ctx, userID, st)
		}
	case MarkInvoicePaidStep:
		if e.handlers.MarkInvoicePaid != nil {
			return e.handlers.MarkInvoicePaid(ctx, userID, st)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported step type %T", core.ErrInternal, s)
	}
	return nil, fmt.Errorf("%w: no handler for step %s", core.ErrInternal, s.Kind())
}
