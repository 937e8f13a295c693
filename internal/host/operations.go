package host

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/gcp-module-project/internal/logging"
	"github.com/blackwell-systems/gcp-module-project/internal/manifest"
	"github.com/blackwell-systems/gcp-module-project/registry"
)

// Plan reports what Apply would do, reading resources in parallel. Per
// resource failures are recorded in the outcomes; the returned error joins
// them.
func (r *Runner) Plan(ctx context.Context, m *manifest.Manifest) ([]Outcome, error) {
	ctx = startRun(ctx, "plan", m)
	prep, failed, err := r.prepare(ctx, m)
	if err != nil {
		return failed, err
	}

	outcomes := r.parallel(ctx, prep, "plan", func(ctx context.Context, p prepared, o *Outcome) error {
		if planner, ok := p.module.(registry.Planner); ok {
			res, err := planner.Plan(ctx, p.spec)
			if err != nil {
				return err
			}
			o.Action, o.Changes, o.State = res.Action, res.Changes, res.State
			return nil
		}
		state, err := p.module.Read(ctx, p.spec)
		if err != nil {
			return err
		}
		o.State = state
		o.Action = registry.ActionNone
		if !state.Exists {
			o.Action = registry.ActionCreate
		}
		return nil
	})
	return outcomes, Errors(outcomes)
}

// Status reads the current state of every resource in parallel.
func (r *Runner) Status(ctx context.Context, m *manifest.Manifest) ([]Outcome, error) {
	ctx = startRun(ctx, "status", m)
	prep, failed, err := r.prepare(ctx, m)
	if err != nil {
		return failed, err
	}

	outcomes := r.parallel(ctx, prep, "read", func(ctx context.Context, p prepared, o *Outcome) error {
		state, err := p.module.Read(ctx, p.spec)
		if err != nil {
			return err
		}
		o.State = state
		o.Action = registry.ActionNone
		return nil
	})
	return outcomes, Errors(outcomes)
}

func (r *Runner) parallel(ctx context.Context, prep []prepared, op string, fn func(context.Context, prepared, *Outcome) error) []Outcome {
	outcomes := make([]Outcome, len(prep))
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)

	for i, p := range prep {
		g.Go(func() error {
			o := outcomeOf(p)
			o.Err = r.invoke(ctx, op, p.res, func(ctx context.Context) error {
				return fn(ctx, p, &o)
			})
			outcomes[i] = o
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Apply converges every resource in manifest order and stops at the first
// failure.
func (r *Runner) Apply(ctx context.Context, m *manifest.Manifest) ([]Outcome, error) {
	ctx = startRun(ctx, "apply", m)
	logger := logging.FromContext(ctx)

	prep, failed, err := r.prepare(ctx, m)
	if err != nil {
		return failed, err
	}

	outcomes := make([]Outcome, 0, len(prep))
	for _, p := range prep {
		o := outcomeOf(p)
		o.Err = r.invoke(ctx, "sync", p.res, func(ctx context.Context) error {
			res, err := p.module.Sync(ctx, p.spec)
			if err != nil {
				return err
			}
			o.Action, o.Changes, o.State = res.Action, res.Changes, res.State
			return nil
		})
		outcomes = append(outcomes, o)
		if o.Err != nil {
			logger.Error("Apply stopped", "resource", p.res.Name, "error", o.Err)
			return outcomes, Errors(outcomes)
		}
		logger.Info("Resource synced", "resource", p.res.Name, "action", o.Action)
	}
	return outcomes, nil
}

// Destroy tears resources down in reverse manifest order. Resources whose
// module cannot delete them are skipped; any other failure stops the run.
func (r *Runner) Destroy(ctx context.Context, m *manifest.Manifest) ([]Outcome, error) {
	ctx = startRun(ctx, "destroy", m)
	logger := logging.FromContext(ctx)

	prep, failed, err := r.prepare(ctx, m)
	if err != nil {
		return failed, err
	}

	outcomes := make([]Outcome, 0, len(prep))
	for i := len(prep) - 1; i >= 0; i-- {
		p := prep[i]
		o := outcomeOf(p)
		err := r.invoke(ctx, "delete", p.res, func(ctx context.Context) error {
			res, err := p.module.Delete(ctx, p.spec)
			if err != nil {
				return err
			}
			o.Action, o.Changes, o.State = res.Action, res.Changes, res.State
			return nil
		})
		switch {
		case errors.Is(err, registry.ErrNotSupported):
			logger.Warn("Resource cannot be deleted, skipping", "resource", p.res.Name, "error", err)
			o.Skipped = true
			o.Action = registry.ActionNone
		case err != nil:
			o.Err = err
			outcomes = append(outcomes, o)
			logger.Error("Destroy stopped", "resource", p.res.Name, "error", err)
			return outcomes, Errors(outcomes)
		default:
			logger.Info("Resource deleted", "resource", p.res.Name, "action", o.Action)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}
