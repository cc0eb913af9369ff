// Package graph provides the core workflow graph execution engine for
// agentgraph: graph construction and validation, versioned state,
// heuristic and AI-assisted routing, checkpointed execution, and parallel
// branch scheduling.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/halcyon-ai/agentgraph/graph/emit"
	"github.com/halcyon-ai/agentgraph/graph/store"
)

// Status is the lifecycle state of one execution.
type Status string

// Execution lifecycle states.
const (
	StatusScheduled Status = "SCHEDULED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// StepHook is invoked before each node execution. The debugger's Session
// implements it to evaluate breakpoints and pause the execution; any
// error aborts the execution.
//
// lastNodeID and lastDuration describe the previously completed node in
// this execution ("" and 0 at the first step), which duration-threshold
// breakpoints evaluate against.
type StepHook interface {
	BeforeNode(ctx context.Context, executionID, nodeID string, state *State, lastNodeID string, lastDuration time.Duration) error
}

// ExecutionInfo is a point-in-time snapshot of one execution's lifecycle.
// Querying a failed execution returns its failing node and error detail
// here rather than through an error return.
type ExecutionInfo struct {
	ID           string
	Status       Status
	CurrentNode  string
	StateVersion int
	Err          string
	FailedNode   string
	StartedAt    time.Time
	EndedAt      time.Time
}

// traversal is one routed edge, remembered until the execution's outcome
// is known and fed back into RoutingHistory.
type traversal struct {
	from, to   string
	confidence float64
}

// execution is the engine's live bookkeeping for one run.
type execution struct {
	mu         sync.Mutex
	id         string
	status     Status
	current    string
	version    int
	err        error
	failedNode string
	startedAt  time.Time
	endedAt    time.Time
	cancel     context.CancelFunc
	seq        int
	steps      int
	traversals []traversal
}

func (x *execution) nextSeq() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.seq++
	return x.seq
}

// countStep increments the step counter and reports whether the budget
// is exhausted. Shared by sequential steps and parallel branches.
func (x *execution) countStep(maxSteps int) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.steps++
	return maxSteps > 0 && x.steps > maxSteps
}

func (x *execution) recordTraversal(from, to string, confidence float64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.traversals = append(x.traversals, traversal{from: from, to: to, confidence: confidence})
}

func (x *execution) setCurrent(nodeID string, version int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.current = nodeID
	x.version = version
}

// Engine executes workflows. One Engine serves many concurrent
// executions of the same immutable Workflow; all shared components
// (router, routing history, backtrack registry) are internally
// synchronized.
type Engine struct {
	workflow   *Workflow
	store      store.Store
	emitter    emit.Emitter
	router     *Router
	history    *RoutingHistory
	backtracks *BacktrackRegistry
	gate       Gate
	metrics    *PrometheusMetrics
	hook       StepHook
	cfg        engineConfig

	branchSem chan struct{}

	mu         sync.RWMutex
	executions map[string]*execution
}

// New creates an execution engine for a validated workflow.
//
// The store persists state records and checkpoints; wrap it in a
// store.TieredStore to offload oversized payloads to blob storage.
// Behavior is tuned through functional options; zero options give a
// sequential-friendly default: 1000 step budget, 8 concurrent branches,
// no node timeout, allow-all gate, discarded events.
func New(workflow *Workflow, st store.Store, opts ...Option) *Engine {
	cfg := engineConfig{
		maxSteps:      1000,
		maxConcurrent: 8,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxConcurrent <= 0 {
		cfg.maxConcurrent = 1
	}
	if cfg.gate == nil {
		cfg.gate = AllowAll()
	}
	if cfg.emitter == nil {
		cfg.emitter = emit.NewNullEmitter()
	}

	history := NewRoutingHistory()
	router := NewRouter(cfg.routerCfg, history, cfg.advisor)
	if cfg.metrics != nil {
		router.OnAdvisorFallback(cfg.metrics.RecordAdvisorFallback)
	}
	return &Engine{
		workflow:   workflow,
		store:      st,
		emitter:    cfg.emitter,
		router:     router,
		history:    history,
		backtracks: NewBacktrackRegistry(),
		gate:       cfg.gate,
		metrics:    cfg.metrics,
		hook:       cfg.hook,
		cfg:        cfg,
		branchSem:  make(chan struct{}, cfg.maxConcurrent),
		executions: make(map[string]*execution),
	}
}

// History returns the engine's routing statistics, shared across
// executions.
func (e *Engine) History() *RoutingHistory { return e.history }

// Execute runs the workflow from its start node against a fresh state
// seeded with initial. An empty executionID generates one.
//
// Execute returns the final state on completion. On failure the returned
// error classifies the cause (NodeError, ErrNoValidRoute, gate denials,
// PersistenceError) and the failed execution remains queryable through
// Status with its error metadata persisted.
func (e *Engine) Execute(ctx context.Context, executionID string, initial map[string]any) (*State, error) {
	if executionID == "" {
		executionID = NewExecutionID()
	}
	state := NewState(executionID, initial)
	return e.run(ctx, executionID, state, e.workflow.Start())
}

// run drives one execution from startNode with the given state, managing
// lifecycle bookkeeping and outcome feedback.
func (e *Engine) run(ctx context.Context, executionID string, state *State, startNode string) (*State, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exec := &execution{
		id:        executionID,
		status:    StatusScheduled,
		current:   startNode,
		startedAt: time.Now().UTC(),
		cancel:    cancel,
	}

	e.mu.Lock()
	if _, exists := e.executions[executionID]; exists {
		e.mu.Unlock()
		return nil, &EngineError{Message: "execution already exists: " + executionID, Code: "DUPLICATE_EXECUTION"}
	}
	e.executions[executionID] = exec
	e.mu.Unlock()

	exec.mu.Lock()
	exec.status = StatusRunning
	exec.mu.Unlock()

	e.emit(exec, emit.ExecutionStart, startNode, "", map[string]any{"state_version": state.Version})

	final, err := e.runSequence(runCtx, exec, state, startNode)

	exec.mu.Lock()
	exec.endedAt = time.Now().UTC()
	if err != nil {
		exec.err = err
		var nodeErr *NodeError
		if errors.As(err, &nodeErr) {
			exec.failedNode = nodeErr.NodeID
		}
		if errors.Is(err, context.Canceled) {
			exec.status = StatusCancelled
		} else {
			exec.status = StatusFailed
		}
	} else {
		exec.status = StatusCompleted
	}
	status := exec.status
	traversals := append([]traversal(nil), exec.traversals...)
	exec.mu.Unlock()

	// Feed the outcome back so future routing decisions learn from it.
	success := status == StatusCompleted
	for _, t := range traversals {
		e.history.RecordOutcome(t.from, t.to, success, t.confidence)
	}
	// A failed execution keeps its saved decision points: Backtrack
	// consumes them one alternative at a time until exhausted.
	if status == StatusCompleted {
		e.backtracks.Clear(executionID)
	}

	meta := map[string]any{"status": string(status)}
	if err != nil {
		meta["error"] = err.Error()
	}
	e.emit(exec, emit.ExecutionEnd, "", "", meta)
	return final, err
}

// runSequence executes nodes sequentially from nodeID until the terminal
// sentinel, forking parallel branches where routing demands them.
func (e *Engine) runSequence(ctx context.Context, exec *execution, state *State, nodeID string) (*State, error) {
	var lastNodeID string
	var lastDuration time.Duration

	for nodeID != End {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if exec.countStep(e.cfg.maxSteps) {
			return state, e.failState(ctx, exec, state, nodeID,
				fmt.Errorf("%w (%d)", ErrMaxStepsExceeded, e.cfg.maxSteps))
		}

		next, out, dur, err := e.step(ctx, exec, state, nodeID, lastNodeID, lastDuration)
		if err != nil {
			return out, err
		}
		lastNodeID = nodeID
		lastDuration = dur
		state = out
		nodeID = next
	}
	return state, nil
}

// step runs one node and routes away from it. It returns the next node ID
// (End included), the resulting state, and the node's execution duration.
func (e *Engine) step(ctx context.Context, exec *execution, state *State, nodeID, lastNodeID string, lastDuration time.Duration) (string, *State, time.Duration, error) {
	exec.setCurrent(nodeID, state.Version)

	// Gate denial fails the step without executing the node and is not
	// retried here.
	if err := e.gate.Authorize(ctx, e.cfg.tenant, nodeID); err != nil {
		return "", state, 0, e.failState(ctx, exec, state, nodeID, fmt.Errorf("gate denied node %s: %w", nodeID, err))
	}

	if e.hook != nil {
		if err := e.hook.BeforeNode(ctx, exec.id, nodeID, state, lastNodeID, lastDuration); err != nil {
			return "", state, 0, e.failState(ctx, exec, state, nodeID, fmt.Errorf("step hook at node %s: %w", nodeID, err))
		}
	}

	node, ok := e.workflow.Node(nodeID)
	if !ok {
		return "", state, 0, e.failState(ctx, exec, state, nodeID,
			&EngineError{Message: "unknown node at runtime: " + nodeID, Code: "NODE_NOT_FOUND"})
	}

	e.emit(exec, emit.NodeEnter, nodeID, "", map[string]any{"state_version": state.Version})

	timeout := nodeTimeout(e.workflow.NodeTimeout(nodeID), e.cfg.defaultTimeout)
	started := time.Now()
	out, err := runNodeWithTimeout(ctx, node, nodeID, state, timeout)
	duration := time.Since(started)

	if err != nil {
		status := "error"
		if errors.Is(err, ErrNodeTimeout) {
			status = "timeout"
		}
		if e.metrics != nil {
			e.metrics.RecordStepLatency(nodeID, duration, status)
		}
		e.emit(exec, emit.NodeError, nodeID, err.Error(), map[string]any{
			"error":       err.Error(),
			"duration_ms": duration.Milliseconds(),
		})
		return "", state, duration, e.failState(ctx, exec, state, nodeID, err)
	}

	if e.metrics != nil {
		e.metrics.RecordStepLatency(nodeID, duration, "success")
	}
	if out == nil {
		out = state
	}
	out.Visit(nodeID)
	exec.setCurrent(nodeID, out.Version)

	e.emit(exec, emit.NodeExit, nodeID, "", map[string]any{
		"state_version": out.Version,
		"duration_ms":   duration.Milliseconds(),
	})

	// Persist before checkpointing: a checkpoint must never reference an
	// unpersisted state version.
	if err := e.persist(ctx, exec, out, nodeID); err != nil {
		return "", out, duration, e.recordFailure(exec, out, nodeID, err)
	}
	if err := e.checkpoint(ctx, exec, out, nodeID, store.CheckpointAuto); err != nil {
		return "", out, duration, e.recordFailure(exec, out, nodeID, err)
	}

	edges := e.workflow.EdgesFrom(nodeID)
	if len(edges) == 0 {
		return End, out, duration, nil
	}

	decision, err := e.router.Decide(ctx, nodeID, edges, out)
	if err != nil {
		return "", out, duration, e.failState(ctx, exec, out, nodeID, err)
	}

	if e.metrics != nil {
		strategy := "simple"
		if len(decision.Parallel) > 0 {
			strategy = string(StrategyParallel)
		}
		e.metrics.RecordRouteDecision(strategy, decision.AdvisorApplied != "")
	}

	if decision.RequiresBacktrackPoint {
		if err := e.saveBacktrackPoint(ctx, exec, out, nodeID, decision); err != nil {
			return "", out, duration, e.recordFailure(exec, out, nodeID, err)
		}
	}

	if decision.Next != "" {
		exec.recordTraversal(nodeID, decision.Next, decision.Confidence)
		e.emit(exec, emit.EdgeTraversal, nodeID, decision.Explanation, map[string]any{
			"next":       decision.Next,
			"confidence": decision.Confidence,
		})
	}

	if len(decision.Parallel) > 0 {
		merged, err := e.runParallel(ctx, exec, out, nodeID, decision.Parallel)
		if err != nil {
			return "", out, duration, err
		}
		out = merged
	}

	if decision.Next == "" {
		// Only parallel edges qualified: the joined state is the result.
		return End, out, duration, nil
	}
	return decision.Next, out, duration, nil
}

// runParallel forks one branch per parallel target, runs them
// concurrently under the branch semaphore, and joins their final states
// last-writer-wins in deterministic order-key order.
func (e *Engine) runParallel(ctx context.Context, exec *execution, state *State, from string, targets []string) (*State, error) {
	fork := newFrontier()
	for _, target := range targets {
		edgeIndex := 0
		for _, edge := range e.workflow.EdgesFrom(from) {
			if edge.To == target && edge.Strategy == StrategyParallel {
				edgeIndex = edge.Index()
				break
			}
		}
		branchState, err := state.Derive()
		if err != nil {
			return nil, e.recordFailure(exec, state, from, err)
		}
		// Sibling branches derive the same version from the fork state, so
		// each persists under its own derived execution ID; otherwise their
		// state records overwrite each other and branch checkpoints restore
		// a sibling's data.
		branchState.ExecutionID = BranchExecutionID(state.ExecutionID, from, edgeIndex)
		branchState.SetMeta("branch_parent", from)
		branchState.SetMeta("branch_entry", target)
		fork.push(branchItem{
			OrderKey:     ComputeOrderKey(from, edgeIndex),
			NodeID:       target,
			State:        branchState,
			ParentNodeID: from,
			EdgeIndex:    edgeIndex,
		})

		// Branch checkpoint at the fork, so each branch can be traced
		// back to its origin.
		if err := e.persist(ctx, exec, branchState, from); err != nil {
			return nil, e.recordFailure(exec, state, from, err)
		}
		if err := e.checkpoint(ctx, exec, branchState, from, store.CheckpointBranch); err != nil {
			return nil, e.recordFailure(exec, state, from, err)
		}
	}

	branches := fork.drain()

	type branchResult struct {
		orderKey uint64
		state    *State
		err      error
	}
	results := make([]branchResult, len(branches))
	var wg sync.WaitGroup
	for i, item := range branches {
		wg.Add(1)
		go func(i int, item branchItem) {
			defer wg.Done()
			e.branchSem <- struct{}{}
			defer func() { <-e.branchSem }()

			if e.metrics != nil {
				e.metrics.UpdateInflightBranches(len(e.branchSem))
			}
			final, err := e.runSequence(ctx, exec, item.State, item.NodeID)
			results[i] = branchResult{orderKey: item.OrderKey, state: final, err: err}
		}(i, item)
	}
	wg.Wait()
	if e.metrics != nil {
		e.metrics.UpdateInflightBranches(len(e.branchSem))
	}

	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
	}

	// Join barrier: merge branch states into a fresh child of the fork
	// state. Branches are applied in ascending order key so overlapping
	// keys resolve last-writer-wins deterministically.
	sort.Slice(results, func(i, j int) bool { return results[i].orderKey < results[j].orderKey })

	merged, err := state.Derive()
	if err != nil {
		return nil, e.recordFailure(exec, state, from, err)
	}
	basePath := len(state.Path)
	for _, res := range results {
		for k, v := range res.state.Data {
			merged.Data[k] = v
		}
		if len(res.state.Path) > basePath {
			merged.Path = append(merged.Path, res.state.Path[basePath:]...)
		}
		if merged.Version <= res.state.Version {
			merged.Version = res.state.Version + 1
		}
	}
	merged.SetMeta("joined_branches", len(results))

	if err := e.persist(ctx, exec, merged, from); err != nil {
		return nil, e.recordFailure(exec, state, from, err)
	}
	e.emit(exec, emit.StateChange, from, "parallel join", map[string]any{
		"state_version": merged.Version,
		"branches":      len(results),
	})
	return merged, nil
}

// persist saves a state record if the state is dirty. Saving a clean
// state is a no-op, so callers persist unconditionally after every step.
func (e *Engine) persist(ctx context.Context, exec *execution, state *State, nodeID string) error {
	if !state.Dirty() {
		return nil
	}
	payload, err := state.MarshalPayload()
	if err != nil {
		return &PersistenceError{Op: "marshal state", Err: err}
	}
	rec := store.StateRecord{
		ExecutionID: state.ExecutionID,
		Version:     state.Version,
		NodeID:      nodeID,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.SaveState(ctx, rec); err != nil {
		return &PersistenceError{Op: "save state", Err: err}
	}
	state.MarkClean()
	e.emit(exec, emit.StateChange, nodeID, "", map[string]any{"state_version": state.Version})
	return nil
}

// checkpoint writes a checkpoint marker for an already-persisted state.
func (e *Engine) checkpoint(ctx context.Context, exec *execution, state *State, nodeID string, kind store.CheckpointType) error {
	cp := store.Checkpoint{
		ID:           NewCheckpointID(),
		ExecutionID:  state.ExecutionID,
		NodeID:       nodeID,
		StateVersion: state.Version,
		Type:         kind,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		return &PersistenceError{Op: "save checkpoint", Err: err}
	}
	if e.metrics != nil {
		e.metrics.RecordCheckpoint(string(kind))
	}
	e.emit(exec, emit.CheckpointSave, nodeID, "", map[string]any{
		"checkpoint_id": cp.ID,
		"kind":          string(kind),
		"state_version": cp.StateVersion,
	})
	return nil
}

// saveBacktrackPoint persists a close-contender routing decision so a
// failed path can later be replayed down an alternative edge.
func (e *Engine) saveBacktrackPoint(ctx context.Context, exec *execution, state *State, nodeID string, decision Decision) error {
	saved, err := state.Derive()
	if err != nil {
		return fmt.Errorf("save backtrack point at %s: %w", nodeID, err)
	}
	e.backtracks.Push(exec.id, &BacktrackPoint{
		NodeID:       nodeID,
		State:        saved,
		Alternatives: decision.Alternatives,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

// failState captures an execution failure into state metadata, persists
// the damaged state, and writes an error checkpoint, so failed executions
// stay fully inspectable. The original error is always returned.
func (e *Engine) failState(ctx context.Context, exec *execution, state *State, nodeID string, cause error) error {
	state.SetMeta("error", cause.Error())
	state.SetMeta("failed_node", nodeID)

	// Best-effort persistence under a detached context: the run context
	// may already be cancelled.
	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := e.persist(saveCtx, exec, state, nodeID); err == nil {
		_ = e.checkpoint(saveCtx, exec, state, nodeID, store.CheckpointError)
	}
	return cause
}

// recordFailure writes error metadata without re-persisting (used when
// persistence itself failed).
func (e *Engine) recordFailure(exec *execution, state *State, nodeID string, cause error) error {
	state.SetMeta("error", cause.Error())
	state.SetMeta("failed_node", nodeID)
	return cause
}

// Status returns a snapshot of an execution's lifecycle. The error is
// non-nil only for unknown execution IDs; failed executions report their
// diagnostics in the returned info.
func (e *Engine) Status(executionID string) (ExecutionInfo, error) {
	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return ExecutionInfo{}, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	info := ExecutionInfo{
		ID:           exec.id,
		Status:       exec.status,
		CurrentNode:  exec.current,
		StateVersion: exec.version,
		FailedNode:   exec.failedNode,
		StartedAt:    exec.startedAt,
		EndedAt:      exec.endedAt,
	}
	if exec.err != nil {
		info.Err = exec.err.Error()
	}
	return info, nil
}

// Cancel aborts an in-flight execution. Cancellation propagates to the
// outstanding node operation through its context; the execution ends
// CANCELLED with the last persisted checkpoint intact.
func (e *Engine) Cancel(executionID string) error {
	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.status != StatusRunning && exec.status != StatusScheduled {
		return &EngineError{Message: fmt.Sprintf("execution %s is %s, not cancellable", executionID, exec.status), Code: "NOT_RUNNING"}
	}
	exec.cancel()
	return nil
}

// Backtrack resumes a failed execution down its best untried alternative
// path using the saved decision state, running it to completion under a
// fresh execution ID (suffix "-bt"). Returns the final state, or an error
// wrapping ErrBacktrackExhausted once every alternative has been tried.
func (e *Engine) Backtrack(ctx context.Context, executionID string) (*State, error) {
	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	exec.mu.Lock()
	tried := exec.failedNode
	if tried == "" {
		tried = exec.current
	}
	attempt := exec.seq
	exec.mu.Unlock()

	alt, err := e.backtracks.Backtrack(executionID, tried)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordBacktrack("exhausted")
		}
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordBacktrack("failure")
	}

	replayID := fmt.Sprintf("%s-bt%d", executionID, attempt)
	alt.State.ExecutionID = replayID
	exec.recordTraversal(alt.FromNode, alt.Target, alt.Score)
	return e.run(ctx, replayID, alt.State, alt.Target)
}

// BacktrackDepth reports how many saved decision points remain for an
// execution.
func (e *Engine) BacktrackDepth(executionID string) int {
	return e.backtracks.Depth(executionID)
}

// Checkpoint writes a manual checkpoint of an execution's latest
// persisted state, typically before a risky operation. Returns the new
// checkpoint ID.
func (e *Engine) Checkpoint(ctx context.Context, executionID string) (string, error) {
	rec, err := e.store.LoadLatest(ctx, executionID)
	if err != nil {
		return "", &PersistenceError{Op: "load latest state", Err: err}
	}
	cp := store.Checkpoint{
		ID:           NewCheckpointID(),
		ExecutionID:  executionID,
		NodeID:       rec.NodeID,
		StateVersion: rec.Version,
		Type:         store.CheckpointManual,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		return "", &PersistenceError{Op: "save checkpoint", Err: err}
	}
	if e.metrics != nil {
		e.metrics.RecordCheckpoint(string(store.CheckpointManual))
	}
	return cp.ID, nil
}

// RestoreFromCheckpoint loads the state version a checkpoint references,
// returning the reconstructed state and the node it was captured at. The
// state is usable to resume execution from that node.
func (e *Engine) RestoreFromCheckpoint(ctx context.Context, checkpointID string) (*State, string, error) {
	cp, err := e.store.LoadCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, "", &PersistenceError{Op: "load checkpoint", Err: err}
	}
	rec, err := e.store.LoadState(ctx, cp.ExecutionID, cp.StateVersion)
	if err != nil {
		return nil, "", &PersistenceError{Op: "load state", Err: err}
	}
	state, err := StateFromPayload(rec.Payload)
	if err != nil {
		return nil, "", &PersistenceError{Op: "decode state", Err: err}
	}
	return state, cp.NodeID, nil
}

// ResumeFromCheckpoint restores a checkpoint and continues execution from
// the node after the checkpointed one, under a new execution ID. An empty
// newExecutionID generates one.
func (e *Engine) ResumeFromCheckpoint(ctx context.Context, checkpointID, newExecutionID string) (*State, error) {
	state, nodeID, err := e.RestoreFromCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if newExecutionID == "" {
		newExecutionID = NewExecutionID()
	}
	state.ExecutionID = newExecutionID

	// The checkpointed node already ran; route away from it to find where
	// the resumed execution picks up.
	edges := e.workflow.EdgesFrom(nodeID)
	if len(edges) == 0 {
		return state, nil
	}
	decision, err := e.router.Decide(ctx, nodeID, edges, state)
	if err != nil {
		return nil, err
	}
	next := decision.Next
	if next == "" && len(decision.Parallel) > 0 {
		next = decision.Parallel[0]
	}
	if next == "" || next == End {
		return state, nil
	}
	return e.run(ctx, newExecutionID, state, next)
}

// emit delivers one lifecycle event, best-effort. Emitters must never
// block or fail execution; panics are swallowed here as a last line of
// defense.
func (e *Engine) emit(exec *execution, eventType emit.EventType, nodeID, msg string, meta map[string]any) {
	defer func() { _ = recover() }()
	e.emitter.Emit(emit.Event{
		ID:          NewEventID(),
		ExecutionID: exec.id,
		Seq:         exec.nextSeq(),
		Type:        eventType,
		NodeID:      nodeID,
		Msg:         msg,
		Meta:        meta,
		Timestamp:   time.Now().UTC(),
	})
}
