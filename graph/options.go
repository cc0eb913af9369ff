package graph

import (
	"time"

	"github.com/halcyon-ai/agentgraph/graph/advise"
	"github.com/halcyon-ai/agentgraph/graph/emit"
)

// Option is a functional option for configuring an Engine.
//
// Functional options provide a clean, extensible API for engine
// configuration:
//   - Chainable: engine := New(wf, st, WithMaxSteps(100), WithGate(gate))
//   - Self-documenting: option names clearly describe their purpose
//   - Optional: only specify the configuration you need
//
// Example:
//
//	engine := graph.New(
//	    workflow, store,
//	    graph.WithMaxSteps(100),
//	    graph.WithDefaultNodeTimeout(10*time.Second),
//	    graph.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	)
type Option func(*engineConfig)

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	maxSteps       int
	maxConcurrent  int
	defaultTimeout time.Duration
	routerCfg      RouterConfig
	advisor        advise.Advisor
	gate           Gate
	emitter        emit.Emitter
	metrics        *PrometheusMetrics
	hook           StepHook
	tenant         string
}

// WithMaxSteps limits the number of node executions in one workflow run.
//
// Default: 1000. The graph itself is acyclic, but backtracking can revisit
// nodes, so a runaway alternative search is still possible. When the limit
// is exceeded Execute fails with an error wrapping ErrMaxStepsExceeded.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) { cfg.maxSteps = n }
}

// WithMaxConcurrent caps how many parallel branches execute at once.
//
// Default: 8. Each branch holds a deep copy of state, so memory usage
// scales linearly with this value.
func WithMaxConcurrent(n int) Option {
	return func(cfg *engineConfig) { cfg.maxConcurrent = n }
}

// WithDefaultNodeTimeout sets the engine-wide node execution timeout.
//
// Default: 0 (unlimited). Per-node overrides set through
// Builder.SetNodeTimeout take precedence. A node that exceeds its timeout
// fails the execution with an error wrapping ErrNodeTimeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) { cfg.defaultTimeout = d }
}

// WithRouterConfig overrides routing heuristics (history weighting, jitter,
// exclusivity boost, contender threshold, advisor bounds).
//
// Zero-valued fields fall back to their defaults; see RouterConfig.
func WithRouterConfig(cfg RouterConfig) Option {
	return func(c *engineConfig) { c.routerCfg = cfg }
}

// WithAdvisor attaches an AI route advisor consulted on competitive
// routing decisions. Advisor failures and timeouts degrade gracefully to
// heuristic-only scoring.
func WithAdvisor(a advise.Advisor) Option {
	return func(cfg *engineConfig) { cfg.advisor = a }
}

// WithGate installs an authorization gate checked before each node runs.
//
// Default: AllowAll(). A gate denial fails the execution with the gate's
// error.
func WithGate(g Gate) Option {
	return func(cfg *engineConfig) { cfg.gate = g }
}

// WithEmitter sets the observability emitter for execution events.
//
// Default: emit.NewNullEmitter(). Use emit.NewMultiEmitter to fan out to
// several backends.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) { cfg.emitter = e }
}

// WithMetrics attaches a Prometheus metrics collector.
//
// Default: no metrics recorded.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) { cfg.metrics = m }
}

// WithHook installs a step hook invoked before each node execution.
// The debugger's session type implements StepHook to pause executions at
// breakpoints; any error returned by the hook aborts the execution.
func WithHook(h StepHook) Option {
	return func(cfg *engineConfig) { cfg.hook = h }
}

// WithTenant sets the tenant identifier passed to the authorization gate.
//
// Default: "" (single-tenant deployments can leave this unset).
func WithTenant(tenant string) Option {
	return func(cfg *engineConfig) { cfg.tenant = tenant }
}
