// Package host drives registry modules over the resources of a manifest.
//
// A Runner resolves each resource's module through the registry, builds the
// module once, substitutes "ref:<name>" spec values with the identity of the
// referenced resource and invokes the capability operations. Every operation
// is rate limited, traced and retried while its failure is transient.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/blackwell-systems/gcp-module-project/cloud"
	"github.com/blackwell-systems/gcp-module-project/internal/logging"
	"github.com/blackwell-systems/gcp-module-project/internal/manifest"
	"github.com/blackwell-systems/gcp-module-project/internal/tracing"
	"github.com/blackwell-systems/gcp-module-project/registry"
)

// RetryPolicy controls retries of transient failures.
type RetryPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Attempts caps the total number of calls, the first one included.
	Attempts int
}

// Options configures a Runner. Zero values fall back to defaults.
type Options struct {
	RateLimit   float64
	Timeout     time.Duration
	Retry       RetryPolicy
	Concurrency int
	Tracer      trace.Tracer
}

func (o Options) withDefaults() Options {
	if o.RateLimit <= 0 {
		o.RateLimit = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	if o.Retry.Attempts < 1 {
		o.Retry.Attempts = 5
	}
	if o.Retry.Initial <= 0 {
		o.Retry.Initial = time.Second
	}
	if o.Retry.Max < o.Retry.Initial {
		o.Retry.Max = 30 * time.Second
	}
	if o.Retry.Multiplier < 1 {
		o.Retry.Multiplier = 2
	}
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.Tracer == nil {
		o.Tracer = tracing.Tracer()
	}
	return o
}

// Outcome is the per-resource result of a run.
type Outcome struct {
	Resource string
	Module   string
	Identity string
	Action   registry.Action
	Changes  []string
	State    *registry.State
	// Skipped is set when the module does not support the operation.
	Skipped bool
	Err     error
}

// Runner executes manifests against a registry.
type Runner struct {
	reg     *registry.Registry
	svc     *cloud.Services
	opts    Options
	limiter *rate.Limiter

	mu      sync.Mutex
	modules map[string]registry.Module
}

// New creates a Runner. Modules are instantiated lazily with svc.
func New(reg *registry.Registry, svc *cloud.Services, opts Options) *Runner {
	opts = opts.withDefaults()
	return &Runner{
		reg:     reg,
		svc:     svc,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		modules: make(map[string]registry.Module),
	}
}

// Module returns the instance of the module registered under id, creating
// it on first use.
func (r *Runner) Module(id string) (registry.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.modules[id]; ok {
		return m, nil
	}
	entry, err := r.reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	m, err := entry.New(r.svc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize module %s: %w", id, err)
	}
	r.modules[id] = m
	return m, nil
}

// startRun tags the logger in ctx with a fresh run ID.
func startRun(ctx context.Context, op string, m *manifest.Manifest) context.Context {
	logger := logging.FromContext(ctx).With("run_id", uuid.NewString(), "op", op)
	logger.Info("Starting run", "resources", len(m.Resources))
	return logging.WithLogger(ctx, logger)
}

// invoke runs fn under the runner's timeout, rate limit, tracing and retry
// policy.
func (r *Runner) invoke(ctx context.Context, op string, res manifest.Resource, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	ctx, span := r.opts.Tracer.Start(ctx, "module."+op, trace.WithAttributes(
		attribute.String("module.id", res.Module),
		attribute.String("resource.name", res.Name),
	))
	defer span.End()

	logger := logging.FromContext(ctx)
	attempts := 0
	backoff := gax.Backoff{
		Initial:    r.opts.Retry.Initial,
		Max:        r.opts.Retry.Max,
		Multiplier: r.opts.Retry.Multiplier,
	}

	err := gax.Invoke(ctx, func(ctx context.Context, _ gax.CallSettings) error {
		attempts++
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	}, gax.WithRetry(func() gax.Retryer {
		return gax.OnErrorFunc(backoff, func(err error) bool {
			if attempts >= r.opts.Retry.Attempts || !registry.IsRetryable(err) {
				return false
			}
			logger.Warn("Retrying transient failure", "resource", res.Name, "op", op, "attempt", attempts, "error", err)
			return true
		})
	}))

	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// resolve substitutes references in the resource spec.
func resolve(res manifest.Resource, identities map[string]string) (registry.Spec, error) {
	spec := res.RegistrySpec()
	var missing []string
	out := substitute(map[string]any(spec), identities, &missing)
	if len(missing) > 0 {
		return nil, registry.Permanent(res.Module, "resolve", res.Name,
			fmt.Errorf("%w: unresolved references %v", registry.ErrInvalidSpec, missing))
	}
	return registry.Spec(out.(map[string]any)), nil
}

func substitute(v any, identities map[string]string, missing *[]string) any {
	switch t := v.(type) {
	case string:
		name, ok := strings.CutPrefix(t, manifest.RefPrefix)
		if !ok {
			return t
		}
		if id, found := identities[name]; found {
			return id
		}
		*missing = append(*missing, name)
		return t
	case map[string]any:
		for k, val := range t {
			t[k] = substitute(val, identities, missing)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = substitute(val, identities, missing)
		}
		return t
	default:
		return v
	}
}

// prepared is a resource with its module, resolved spec and identity.
type prepared struct {
	res      manifest.Resource
	module   registry.Module
	spec     registry.Spec
	identity string
}

// prepare resolves modules, references and identities in manifest order.
// It stops at the first resource that cannot be prepared, since later
// resources may depend on it.
func (r *Runner) prepare(ctx context.Context, m *manifest.Manifest) ([]prepared, []Outcome, error) {
	identities := make(map[string]string, len(m.Resources))
	out := make([]prepared, 0, len(m.Resources))

	for _, res := range m.Resources {
		fail := func(err error) ([]prepared, []Outcome, error) {
			o := Outcome{Resource: res.Name, Module: res.Module, Err: err}
			return out, []Outcome{o}, fmt.Errorf("resource %s: %w", res.Name, err)
		}

		mod, err := r.Module(res.Module)
		if err != nil {
			return fail(err)
		}
		spec, err := resolve(res, identities)
		if err != nil {
			return fail(err)
		}
		var identity string
		err = r.invoke(ctx, "identity", res, func(ctx context.Context) error {
			var err error
			identity, err = mod.Identity(ctx, spec)
			return err
		})
		if err != nil {
			return fail(err)
		}
		identities[res.Name] = identity
		out = append(out, prepared{res: res, module: mod, spec: spec, identity: identity})
	}
	return out, nil, nil
}

func outcomeOf(p prepared) Outcome {
	return Outcome{Resource: p.res.Name, Module: p.res.Module, Identity: p.identity}
}

// Errors joins the errors of failed outcomes.
func Errors(outcomes []Outcome) error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("resource %s: %w", o.Resource, o.Err))
		}
	}
	return errors.Join(errs...)
}
