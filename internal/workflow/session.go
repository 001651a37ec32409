// Package workflow sequences the goal, title, render and edit stages of a
// visualization session against the remote analysis service.
//
// A Session holds exactly one State and admits one request at a time.
// Failures never leave partial state: the operation's error is returned,
// posted to the session's NoticeBoard, and the state stays at its last
// stable value.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vizflow/internal/logging"
	"vizflow/internal/rendercache"
	"vizflow/internal/viz"
)

// DefaultRequestTimeout bounds every gated operation.
const DefaultRequestTimeout = 2 * time.Minute

// Gateway is the remote analysis service as the workflow uses it.
// *vizapi.Client implements it.
type Gateway interface {
	GenerateGoals(ctx context.Context, goalCount int) ([]viz.Goal, error)
	AddGoal(ctx context.Context, description string, goalCount int) (viz.Goal, error)
	GenerateTitles(ctx context.Context, visualizationCount int) ([]string, error)
	Render(ctx context.Context, r viz.RenderRequest) (viz.Raster, error)
	Edit(ctx context.Context, instruction string) (viz.Raster, error)
	Undo(ctx context.Context) (viz.UndoResult, error)
	Explain(ctx context.Context) (string, error)
	Evaluate(ctx context.Context) ([]viz.Evaluation, error)
	ClearSession(ctx context.Context) error
}

// Options configures a Session.
type Options struct {
	Gateway Gateway
	// Cache persists the active artifact. Nil means an in-memory cache.
	Cache rendercache.Cache
	// RequestTimeout bounds each operation. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
	// VisualizationCount is the initial count for title requests. Zero means 1.
	VisualizationCount int
	Logger             *slog.Logger
	Now                func() time.Time
}

// Session is one user's workflow.
type Session struct {
	id      string
	gw      Gateway
	cache   rendercache.Cache
	timeout time.Duration
	count   int
	log     *slog.Logger
	guard   *guard
	notices *NoticeBoard

	mu    sync.Mutex
	state State

	Goals      *GoalCatalog
	Visualizer *Visualizer
	Editor     *Editor
}

// Open creates a session. An artifact found in the cache resumes the
// session in ArtifactReady with the artifact's goal as the only catalog
// entry.
func Open(opts Options) (*Session, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("workflow: gateway is required")
	}
	s := &Session{
		id:      uuid.NewString(),
		gw:      opts.Gateway,
		cache:   opts.Cache,
		timeout: opts.RequestTimeout,
		count:   opts.VisualizationCount,
		log:     opts.Logger,
		guard:   newGuard(),
		state:   Idle{},
	}
	if s.cache == nil {
		s.cache = rendercache.NewMemCache()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultRequestTimeout
	}
	if s.count == 0 {
		s.count = 1
	}
	if !viz.ValidCount(s.count) {
		return nil, fmt.Errorf("workflow: visualization count %d outside [%d,%d]", s.count, viz.MinCount, viz.MaxCount)
	}
	if s.log == nil {
		s.log = logging.New("workflow")
	}
	s.log = s.log.With("session", s.id)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s.notices = newNoticeBoard(now)
	s.Goals = &GoalCatalog{s: s}
	s.Visualizer = &Visualizer{s: s}
	s.Editor = &Editor{s: s}

	a, ok, err := s.cache.Load()
	switch {
	case err != nil:
		s.log.Warn("render cache unreadable, starting fresh", "error", err)
		s.notices.Post("resume", err)
	case ok:
		g := a.SourceGoal
		s.state = ArtifactReady{
			GoalSelected: GoalSelected{Goals: []viz.Goal{g}, Goal: g, Count: s.count},
			Artifact:     a,
		}
		s.log.Info("resumed from render cache", "title", a.SourceTitle, "digest", a.Digest())
	}
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Snapshot returns the current state. It never waits on the network.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stage returns the current stage.
func (s *Session) Stage() Stage { return s.Snapshot().Stage() }

// Count is the visualization count the next title request uses when the
// caller gives none: the selected goal's count, or the session default
// before a goal is selected.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sel, ok := selectionOf(s.state); ok && sel.Count != 0 {
		return sel.Count
	}
	return s.count
}

// Busy reports the in-flight operation, if any.
func (s *Session) Busy() (string, bool) { return s.guard.inFlight() }

// Cancel aborts the in-flight request. It reports whether one was running.
func (s *Session) Cancel() bool {
	ok := s.guard.abort()
	if ok {
		s.log.Info("in-flight request cancelled")
	}
	return ok
}

// Notices returns the session's notice board.
func (s *Session) Notices() *NoticeBoard { return s.notices }

// Close releases the render cache.
func (s *Session) Close() error { return s.cache.Close() }

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Session) defaultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Session) setDefaultCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = n
}

// run executes fn as the single in-flight operation op. Errors are
// normalized, posted as notices and logged.
func (s *Session) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, release, err := s.guard.enter(ctx, op, s.timeout)
	if err != nil {
		return s.fail(op, err)
	}
	defer release()

	start := time.Now()
	if err := fn(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && viz.Classify(err) == viz.KindInternal {
			err = &viz.NetworkError{Op: op, Err: ctxErr}
		}
		return s.fail(op, err)
	}
	s.log.Debug("operation done", "op", op, "elapsed", time.Since(start))
	return nil
}

func (s *Session) fail(op string, err error) error {
	n := s.notices.Post(op, err)
	level := slog.LevelWarn
	if n.Kind == viz.KindInternal {
		level = slog.LevelError
	}
	s.log.Log(context.Background(), level, "operation failed", "op", op, "kind", n.Kind, "notice", n.ID, "error", err)
	return err
}

// persist writes a to the render cache. A failed write is logged and
// does not fail the operation.
func (s *Session) persist(a viz.Artifact) {
	if err := s.cache.Save(a); err != nil {
		s.log.Warn("render cache write failed", "error", err)
	}
}

// errState reports a precondition failure with the current stage.
func errState(op string, st State, want string) error {
	return viz.Validationf(op, "%s (current stage: %s)", want, st.Stage())
}

// IsBusy reports whether err is a busy rejection.
func IsBusy(err error) bool { return errors.Is(err, viz.ErrBusy) }
