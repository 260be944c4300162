// Package upgrader runs one-shot data migrations at startup.
//
// Each upgrader runs at most once per installation: its outcome is kept in
// the installation store under the upgrader name and a SUCCESS is never
// repeated.
package upgrader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/apimplane/apim/internal/metrics"
	"github.com/apimplane/apim/internal/model"
)

// Upgrader is a one-shot migration.
type Upgrader interface {
	Name() string
	// Order sets the position in the run. Lower runs first.
	Order() int
	Upgrade(ctx context.Context) error
}

// Blocker is implemented by upgraders whose failure must stop the run.
type Blocker interface {
	Blocking() bool
}

// ErrBlockingFailure is returned by Run when a blocking upgrader fails.
var ErrBlockingFailure = errors.New("blocking upgrader failed")

// Outcome values reported in a Result.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Result reports what happened to one upgrader.
type Result struct {
	Name     string
	Outcome  string
	Err      error
	Duration time.Duration
}

// Runner executes registered upgraders in order.
type Runner struct {
	store     InstallationStore
	metrics   metrics.Recorder
	logger    *slog.Logger
	upgraders []Upgrader
}

// NewRunner creates a Runner.
func NewRunner(store InstallationStore, recorder metrics.Recorder, logger *slog.Logger, upgraders ...Upgrader) *Runner {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:     store,
		metrics:   recorder,
		logger:    logger.With("component", "upgrader"),
		upgraders: upgraders,
	}
}

// Upgraders returns the registered upgraders in run order.
func (r *Runner) Upgraders() []Upgrader {
	sorted := make([]Upgrader, len(r.upgraders))
	copy(sorted, r.upgraders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})
	return sorted
}

// Run executes every pending upgrader. progress, when set, is called after
// each upgrader. Failures are recorded and the run goes on, unless the
// failed upgrader is blocking.
func (r *Runner) Run(ctx context.Context, progress func(Result)) ([]Result, error) {
	var results []Result
	for _, u := range r.Upgraders() {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := r.runOne(ctx, u)
		results = append(results, res)
		r.metrics.IncUpgraderRun(res.Name, res.Outcome)
		if res.Outcome != OutcomeSkipped {
			r.metrics.ObserveUpgraderDuration(res.Name, res.Duration)
		}
		if progress != nil {
			progress(res)
		}

		if res.Outcome == OutcomeFailure && isBlocking(u) {
			return results, fmt.Errorf("%w: %s: %v", ErrBlockingFailure, res.Name, res.Err)
		}
	}
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, u Upgrader) Result {
	name := u.Name()
	res := Result{Name: name}

	status, err := r.store.Get(ctx, name)
	switch {
	case errors.Is(err, ErrStatusNotFound):
	case err != nil:
		res.Outcome = OutcomeFailure
		res.Err = fmt.Errorf("read installation status: %w", err)
		r.logger.Error("cannot read upgrader status", "upgrader", name, "error", err)
		return res
	case status.Value == model.InstallationSuccess:
		res.Outcome = OutcomeSkipped
		r.logger.Debug("upgrader already applied", "upgrader", name)
		return res
	case status.Value == model.InstallationRunning:
		res.Outcome = OutcomeSkipped
		r.logger.Warn("upgrader is marked running, skipping; reset its installation status if a previous run crashed",
			"upgrader", name, "since", status.UpdatedAt)
		return res
	}

	if err := r.store.Set(ctx, name, model.InstallationRunning, ""); err != nil {
		res.Outcome = OutcomeFailure
		res.Err = fmt.Errorf("mark running: %w", err)
		r.logger.Error("cannot mark upgrader running", "upgrader", name, "error", err)
		return res
	}

	r.logger.Info("running upgrader", "upgrader", name)
	start := time.Now()
	err = safeUpgrade(ctx, u)
	res.Duration = time.Since(start)

	if err != nil {
		res.Outcome = OutcomeFailure
		res.Err = err
		r.logger.Error("upgrader failed", "upgrader", name, "duration_ms", res.Duration.Milliseconds(), "error", err)
		if setErr := r.store.Set(ctx, name, model.InstallationFailure, err.Error()); setErr != nil {
			r.logger.Error("cannot record upgrader failure", "upgrader", name, "error", setErr)
		}
		return res
	}

	res.Outcome = OutcomeSuccess
	r.logger.Info("upgrader done", "upgrader", name, "duration_ms", res.Duration.Milliseconds())
	if err := r.store.Set(ctx, name, model.InstallationSuccess, ""); err != nil {
		res.Outcome = OutcomeFailure
		res.Err = fmt.Errorf("mark success: %w", err)
		r.logger.Error("cannot record upgrader success", "upgrader", name, "error", err)
	}
	return res
}

func safeUpgrade(ctx context.Context, u Upgrader) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return u.Upgrade(ctx)
}

func isBlocking(u Upgrader) bool {
	b, ok := u.(Blocker)
	return ok && b.Blocking()
}
