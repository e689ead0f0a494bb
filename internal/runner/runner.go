// Package runner orchestrates one automation run end to end: browser
// and session setup, the iteration loop, persistence of outcomes, and
// teardown. What one iteration does is a Strategy value supplied at
// construction.
package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-rod/rod"

	"github.com/fame0528/powerbot/internal/browser"
	"github.com/fame0528/powerbot/internal/challenge"
	"github.com/fame0528/powerbot/internal/config"
	"github.com/fame0528/powerbot/internal/consent"
	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/pipeline"
	"github.com/fame0528/powerbot/internal/repository"
	"github.com/fame0528/powerbot/internal/retry"
	"github.com/fame0528/powerbot/internal/session"
)

// runContextID names the browsing context a run executes in.
const runContextID = "run"

// Strategy drives one iteration of the automation loop. Returning
// done=true ends the run successfully; an error (after the runner's
// retry policy is exhausted) fails it.
type Strategy interface {
	Step(ctx context.Context, page *rod.Page) (done bool, err error)
}

// Runner wires the browser manager, session controller, pipeline and
// retry policy into one automation run.
type Runner struct {
	cfg        *config.Config
	manager    *browser.Manager
	controller *session.Controller
	pipeline   *pipeline.Pipeline
	actions    repository.ActionLogRepository
	strategy   Strategy
	policy     retry.Policy
	consent    *consent.Dismisser // nil when auto-dismiss is off
	challenges *challenge.Detector
	logger     *slog.Logger
}

// New creates a runner. The retry policy is built from the config's
// retry fields and wraps every page action.
func New(
	cfg *config.Config,
	manager *browser.Manager,
	controller *session.Controller,
	pipe *pipeline.Pipeline,
	actions repository.ActionLogRepository,
	strategy Strategy,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		cfg:        cfg,
		manager:    manager,
		controller: controller,
		pipeline:   pipe,
		actions:    actions,
		strategy:   strategy,
		policy: retry.Policy{
			Enabled:           cfg.RetryEnabled,
			MaxRetries:        cfg.RetryMaxRetries,
			Delay:             cfg.RetryDelay,
			BackoffMultiplier: cfg.RetryBackoffMultiplier,
			Jitter:            cfg.RetryJitter,
		},
		challenges: challenge.NewDetector(logger),
		logger:     logger.With("component", "runner"),
	}
	if cfg.ConsentAutoDismiss {
		r.consent = consent.NewDismisser(logger)
	}
	return r
}

// Run executes the full automation flow against a fresh browser:
// launch, context, page, then the session-scoped part. The browser is
// torn down on the way out no matter how the run ends.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.manager.Launch(ctx); err != nil {
		return err
	}
	defer func() {
		if err := r.manager.Close(); err != nil {
			r.logger.Warn("browser teardown failed", "error", err)
		}
	}()

	if _, err := r.manager.CreateContext(ctx, runContextID); err != nil {
		return err
	}
	page, err := r.manager.GetPage(ctx, runContextID, "")
	if err != nil {
		return err
	}

	return r.execute(ctx, page)
}

// execute runs the session-scoped flow on an already-acquired page:
// start the session, drive the loop, finalize the session state.
func (r *Runner) execute(ctx context.Context, page *rod.Page) error {
	sessionID, err := r.controller.Start(ctx, r.cfg.TargetURL)
	if err != nil {
		return err
	}
	r.pipeline.Bind(sessionID)
	r.logger.Info("run started", "session_id", sessionID, "target_url", r.cfg.TargetURL)

	if runErr := r.run(ctx, page); runErr != nil {
		// The run context may already be cancelled; the session row
		// still has to reach its terminal state.
		finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := r.controller.Fail(finalizeCtx, runErr.Error()); err != nil {
			r.logger.Error("failed to record session failure", "session_id", sessionID, "error", err)
		}
		return runErr
	}

	r.captureCookies(ctx, page)
	return r.controller.Complete(ctx)
}

// run drives navigation, optional login and the strategy loop. Each
// page action passes a cancellation checkpoint, runs under the retry
// policy and lands in the action log.
func (r *Runner) run(ctx context.Context, page *rod.Page) error {
	if r.cfg.TargetURL != "" {
		if err := r.navigate(ctx, page); err != nil {
			return err
		}
	}
	if r.cfg.LoginRequired {
		if err := r.login(ctx, page); err != nil {
			return err
		}
	}

	for iteration := 0; ; iteration++ {
		if r.cfg.MaxIterations > 0 && iteration >= r.cfg.MaxIterations {
			r.logger.Info("iteration limit reached", "iterations", iteration)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var done bool
		err := r.withAction(ctx, "step", "", func(ctx context.Context) error {
			var stepErr error
			done, stepErr = r.strategy.Step(ctx, page)
			return stepErr
		})
		if err != nil {
			return err
		}
		if done {
			r.logger.Info("strategy finished", "iterations", iteration+1)
			return nil
		}
	}
}

// withAction wraps one logical page action with the retry policy and
// records its outcome. The recorded duration covers all attempts.
func (r *Runner) withAction(ctx context.Context, action, selector string, op retry.Operation) error {
	start := time.Now()
	err := retry.Do(ctx, r.policy, op)

	entry := &models.ActionEntry{
		SessionID:  r.controller.Current(),
		Action:     action,
		Selector:   selector,
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
		LoggedAt:   time.Now().UTC(),
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	// Record with cancellation stripped so an aborted action still
	// leaves its outcome in the log.
	if logErr := r.actions.Record(context.WithoutCancel(ctx), entry); logErr != nil {
		r.logger.Warn("failed to record action", "action", action, "error", logErr)
	}
	return err
}

func (r *Runner) navigate(ctx context.Context, page *rod.Page) error {
	err := r.withAction(ctx, "navigate", "", func(ctx context.Context) error {
		p := page.Context(ctx).Timeout(r.cfg.NavigationTimeout)
		if err := p.Navigate(r.cfg.TargetURL); err != nil {
			return err
		}
		return p.WaitLoad()
	})
	if err != nil {
		return err
	}
	return r.guardPage(ctx, page)
}

// guardPage clears consent banners and refuses to run on a page held
// by an anti-bot challenge. Self-clearing checks get the navigation
// timeout to resolve before the run is failed.
func (r *Runner) guardPage(ctx context.Context, page *rod.Page) error {
	if r.consent != nil {
		r.consent.Dismiss(ctx, page)
	}

	det, err := r.challenges.Resolve(ctx, page, r.cfg.NavigationTimeout)
	if err != nil {
		return err
	}
	if det != nil {
		return &models.ChallengeError{Kind: string(det.Type), URL: det.URL}
	}
	return nil
}

// login fills the configured credential fields and submits the form.
func (r *Runner) login(ctx context.Context, page *rod.Page) error {
	err := r.withAction(ctx, "fill", r.cfg.LoginUsernameSelector, func(ctx context.Context) error {
		return fillInput(ctx, page, r.cfg.DefaultTimeout, r.cfg.LoginUsernameSelector, r.cfg.LoginUsername)
	})
	if err != nil {
		return err
	}

	err = r.withAction(ctx, "fill", r.cfg.LoginPasswordSelector, func(ctx context.Context) error {
		return fillInput(ctx, page, r.cfg.DefaultTimeout, r.cfg.LoginPasswordSelector, r.cfg.LoginPassword)
	})
	if err != nil {
		return err
	}

	return r.withAction(ctx, "click", r.cfg.LoginSubmitSelector, func(ctx context.Context) error {
		if err := clickElement(ctx, page, r.cfg.DefaultTimeout, r.cfg.LoginSubmitSelector); err != nil {
			return err
		}
		return page.Context(ctx).Timeout(r.cfg.NavigationTimeout).WaitLoad()
	})
}

// captureCookies snapshots the page's cookies into captured state, best
// effort: a failure here never fails a finished run.
func (r *Runner) captureCookies(ctx context.Context, page *rod.Page) {
	if page == nil {
		return
	}

	cookies, err := page.Cookies(nil)
	if err != nil {
		r.logger.Warn("failed to read cookies", "error", err)
		return
	}
	if len(cookies) == 0 {
		return
	}

	data, err := json.Marshal(cookies)
	if err != nil {
		r.logger.Warn("failed to serialize cookies", "error", err)
		return
	}
	if _, err := r.pipeline.CaptureState(ctx, "cookies", string(data)); err != nil {
		r.logger.Warn("failed to capture cookies", "error", err)
	}
}
