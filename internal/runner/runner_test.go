package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod"

	"github.com/fame0528/powerbot/internal/browser"
	"github.com/fame0528/powerbot/internal/config"
	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/pipeline"
	"github.com/fame0528/powerbot/internal/repository"
	"github.com/fame0528/powerbot/internal/session"
	"github.com/fame0528/powerbot/internal/storage"
)

// stubStrategy counts step calls and delegates behavior per call index
// (1-based). It never touches the page, so tests run with a nil page.
type stubStrategy struct {
	calls int
	step  func(ctx context.Context, call int) (bool, error)
}

func (s *stubStrategy) Step(ctx context.Context, _ *rod.Page) (bool, error) {
	s.calls++
	return s.step(ctx, s.calls)
}

func testConfig() *config.Config {
	return &config.Config{
		RetryEnabled:           true,
		RetryMaxRetries:        2,
		RetryDelay:             time.Millisecond,
		RetryBackoffMultiplier: 1,
		DefaultTimeout:         time.Second,
		NavigationTimeout:      time.Second,
		ViewportWidth:          1280,
		ViewportHeight:         720,
	}
}

func newTestRunner(t *testing.T, cfg *config.Config, strategy Strategy) (*Runner, *repository.Repositories) {
	t.Helper()

	store, err := storage.Open(storage.Config{}, nil)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	repos := repository.NewRepositories(store)
	controller := session.NewController(repos.Session, nil)
	pipe := pipeline.NewPipeline(nil, repos.ScrapedData, repos.CapturedState, nil)
	manager := browser.NewManager(cfg, nil)

	return New(cfg, manager, controller, pipe, repos.ActionLog, strategy, nil), repos
}

func TestExecuteCompletesSession(t *testing.T) {
	strategy := &stubStrategy{step: func(context.Context, int) (bool, error) {
		return true, nil
	}}
	r, repos := newTestRunner(t, testConfig(), strategy)
	ctx := context.Background()

	if err := r.execute(ctx, nil); err != nil {
		t.Fatalf("expected clean run, got %v", err)
	}
	if strategy.calls != 1 {
		t.Errorf("expected 1 step call, got %d", strategy.calls)
	}

	sess, err := repos.Session.GetBySessionID(ctx, r.controller.Current())
	if err != nil || sess == nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if sess.Status != models.SessionStatusCompleted {
		t.Errorf("expected completed session, got %q", sess.Status)
	}
	if sess.EndedAt == nil {
		t.Error("expected EndedAt on a completed session")
	}

	count, err := repos.ActionLog.CountBySessionID(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("failed to count actions: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 logged action, got %d", count)
	}
	failures, err := repos.ActionLog.FailureCount(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("failed to count failures: %v", err)
	}
	if failures != 0 {
		t.Errorf("expected no failed actions, got %d", failures)
	}
}

func TestExecuteFailsSessionOnStrategyError(t *testing.T) {
	cause := errors.New("element vanished")
	strategy := &stubStrategy{step: func(context.Context, int) (bool, error) {
		return false, cause
	}}
	r, repos := newTestRunner(t, testConfig(), strategy)
	ctx := context.Background()

	err := r.execute(ctx, nil)
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	var exhausted *models.RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected retry exhaustion, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", exhausted.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped, got %v", err)
	}
	if strategy.calls != 3 {
		t.Errorf("expected 3 step calls, got %d", strategy.calls)
	}

	sess, loadErr := repos.Session.GetBySessionID(ctx, r.controller.Current())
	if loadErr != nil || sess == nil {
		t.Fatalf("failed to load session: %v", loadErr)
	}
	if sess.Status != models.SessionStatusFailed {
		t.Errorf("expected failed session, got %q", sess.Status)
	}
	if sess.EndedAt == nil {
		t.Error("expected EndedAt on a failed session")
	}
	if got := sess.Metadata[models.MetadataKeyLastError]; got != err.Error() {
		t.Errorf("expected last error %q, got %q", err.Error(), got)
	}

	entries, logErr := repos.ActionLog.GetBySessionID(ctx, sess.SessionID)
	if logErr != nil {
		t.Fatalf("failed to load actions: %v", logErr)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 logged action, got %d", len(entries))
	}
	if entries[0].Action != "step" || entries[0].Success {
		t.Errorf("expected a failed step entry, got %+v", entries[0])
	}
	if entries[0].ErrorMessage == "" {
		t.Error("expected the entry to carry the error message")
	}
}

func TestRunHonorsIterationLimit(t *testing.T) {
	strategy := &stubStrategy{step: func(context.Context, int) (bool, error) {
		return false, nil
	}}
	cfg := testConfig()
	cfg.MaxIterations = 3
	r, repos := newTestRunner(t, cfg, strategy)
	ctx := context.Background()

	if err := r.execute(ctx, nil); err != nil {
		t.Fatalf("expected clean run, got %v", err)
	}
	if strategy.calls != 3 {
		t.Errorf("expected 3 step calls, got %d", strategy.calls)
	}

	sess, err := repos.Session.GetBySessionID(ctx, r.controller.Current())
	if err != nil || sess == nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if sess.Status != models.SessionStatusCompleted {
		t.Errorf("expected completed session after hitting the limit, got %q", sess.Status)
	}

	count, err := repos.ActionLog.CountBySessionID(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("failed to count actions: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 logged actions, got %d", count)
	}
}

func TestExecuteCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	strategy := &stubStrategy{step: func(_ context.Context, call int) (bool, error) {
		if call == 2 {
			cancel()
		}
		return false, nil
	}}
	r, repos := newTestRunner(t, testConfig(), strategy)

	err := r.execute(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if strategy.calls != 2 {
		t.Errorf("expected the loop to stop at the checkpoint after 2 steps, got %d", strategy.calls)
	}

	// Finalization must survive the cancelled run context.
	sess, loadErr := repos.Session.GetBySessionID(context.Background(), r.controller.Current())
	if loadErr != nil || sess == nil {
		t.Fatalf("failed to load session: %v", loadErr)
	}
	if sess.Status != models.SessionStatusFailed {
		t.Errorf("expected failed session after cancellation, got %q", sess.Status)
	}
	if sess.EndedAt == nil {
		t.Error("expected EndedAt on a cancelled session")
	}
}

func TestExecuteRejectsBoundController(t *testing.T) {
	strategy := &stubStrategy{step: func(context.Context, int) (bool, error) {
		return true, nil
	}}
	r, _ := newTestRunner(t, testConfig(), strategy)
	ctx := context.Background()

	if _, err := r.controller.Start(ctx, ""); err != nil {
		t.Fatalf("failed to pre-bind controller: %v", err)
	}
	if err := r.execute(ctx, nil); !errors.Is(err, models.ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}
	if strategy.calls != 0 {
		t.Errorf("expected no step calls after a start failure, got %d", strategy.calls)
	}
}
