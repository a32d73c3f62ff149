// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"context"
	"errors"
	"fmt"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/pbinitiative/zenproc/pkg/storage"
)

// instanceState is the in-operation arena of one process instance tree:
// executions indexed by key, parents tracked before children, plus the
// instance's subscriptions, timers and the queue of variable events
// pending conditional evaluation.
type instanceState struct {
	instance      *runtime.ProcessInstance
	definition    *runtime.ProcessDefinition
	executions    map[int64]*runtime.Execution
	order         []int64
	subscriptions []*runtime.EventSubscription
	timers        []*runtime.Timer

	// queue holds variable events raised during this operation; flushed
	// breadth-first once the current scope-entry sequence completes.
	queue       []runtime.VariableEvent
	entryDepth  int
	dispatching bool

	// deleted marks the whole instance for row removal on persist.
	deleted bool
}

func newInstanceState(instance *runtime.ProcessInstance, definition *runtime.ProcessDefinition) *instanceState {
	return &instanceState{
		instance:   instance,
		definition: definition,
		executions: map[int64]*runtime.Execution{},
	}
}

func (st *instanceState) track(execution *runtime.Execution) {
	st.executions[execution.Key] = execution
	st.order = append(st.order, execution.Key)
}

func (st *instanceState) root() *runtime.Execution {
	return st.executions[st.instance.RootExecutionKey]
}

func (st *instanceState) execution(key int64) *runtime.Execution {
	return st.executions[key]
}

func (st *instanceState) children(parentKey int64) []*runtime.Execution {
	var result []*runtime.Execution
	for _, key := range st.order {
		execution := st.executions[key]
		if execution.ParentKey == parentKey {
			result = append(result, execution)
		}
	}
	return result
}

// scopeOf returns the nearest scope execution, the execution itself when
// it owns a variable store.
func (st *instanceState) scopeOf(execution *runtime.Execution) *runtime.Execution {
	current := execution
	for current != nil && !current.IsScope {
		current = st.executions[current.ParentKey]
	}
	return current
}

// scopeChain returns the scope executions visible from given execution,
// innermost to outermost, never crossing the super-execution edge.
func (st *instanceState) scopeChain(execution *runtime.Execution) []*runtime.Execution {
	var chain []*runtime.Execution
	current := st.scopeOf(execution)
	for current != nil {
		chain = append(chain, current)
		current = st.scopeOf(st.executions[current.ParentKey])
	}
	return chain
}

// holderFor layers a VariableHolder chain over the scope ancestry of the
// execution; mutations through the holder land on the owning executions.
func (st *instanceState) holderFor(execution *runtime.Execution) *runtime.VariableHolder {
	chain := st.scopeChain(execution)
	var parent *runtime.VariableHolder
	for i := len(chain) - 1; i >= 0; i-- {
		holder := runtime.NewVariableHolder(parent, chain[i].Variables)
		parent = &holder
	}
	return parent
}

// visibleVariables merges the variable stores of the scope chain, inner
// bindings shadowing outer ones. Transient values are part of the view for
// expression evaluation but excluded from copy-all mapping operations.
func (st *instanceState) visibleVariables(execution *runtime.Execution, includeTransient bool) map[string]interface{} {
	holder := st.holderFor(execution)
	if holder == nil {
		return map[string]interface{}{}
	}
	merged := holder.Variables()
	if includeTransient {
		return merged
	}
	chain := st.scopeChain(execution)
	for name := range merged {
		for _, scope := range chain {
			if _, ok := scope.Variables[name]; ok {
				if scope.IsTransient(name) {
					delete(merged, name)
				}
				break
			}
		}
	}
	return merged
}

// hasActiveExecutions reports whether any work remains in the tree. The
// root execution does not count, it stays active for the whole instance
// lifetime.
func (st *instanceState) hasActiveExecutions() bool {
	for _, key := range st.order {
		execution := st.executions[key]
		if execution.IsRoot() {
			continue
		}
		if execution.State == runtime.ActivityStateActive || execution.State == runtime.ActivityStateReady {
			return true
		}
	}
	return false
}

// subscriptionsOwnedBy returns active subscriptions owned by given scope
// execution in registration order.
func (st *instanceState) subscriptionsOwnedBy(scopeKey int64, eventType model.EventType) []*runtime.EventSubscription {
	var result []*runtime.EventSubscription
	for _, subscription := range st.subscriptions {
		if subscription.ExecutionKey == scopeKey && subscription.Type == eventType && subscription.State == runtime.ActivityStateActive {
			result = append(result, subscription)
		}
	}
	return result
}

func (st *instanceState) subscriptionsGuarding(executionKey int64) []*runtime.EventSubscription {
	var result []*runtime.EventSubscription
	for _, subscription := range st.subscriptions {
		if subscription.GuardedExecutionKey == executionKey && subscription.State == runtime.ActivityStateActive {
			result = append(result, subscription)
		}
	}
	return result
}

// checkMutable fails with a StateError when the execution, or any of its
// ancestors, is suspended or ended; conditional evaluation against a
// frozen instance is disallowed.
func (st *instanceState) checkMutable(execution *runtime.Execution) error {
	if st.instance.State != runtime.ActivityStateActive {
		return &StateError{Key: st.instance.Key, State: string(st.instance.State), Msg: "process instance does not accept mutations"}
	}
	for current := execution; current != nil; current = st.executions[current.ParentKey] {
		if current.Suspended {
			return &StateError{Key: current.Key, State: "SUSPENDED", Msg: "execution is suspended"}
		}
		if current.IsEnded() {
			return &StateError{Key: current.Key, State: string(current.State), Msg: "execution has ended"}
		}
	}
	return nil
}

func (st *instanceState) beginScopeEntry() {
	st.entryDepth++
}

// persist writes the instance tree back through the batch. Deleted
// instances turn into row removals instead of upserts.
func (st *instanceState) persist(ctx context.Context, engine *Engine, batch storage.Batch) error {
	var errJoin error
	if st.deleted {
		for _, key := range st.order {
			errJoin = errors.Join(errJoin, batch.DeleteExecution(ctx, key))
		}
		for _, subscription := range st.subscriptions {
			errJoin = errors.Join(errJoin, batch.DeleteEventSubscription(ctx, subscription.Key))
		}
		for _, timer := range st.timers {
			timer.TimerState = runtime.TimerStateCancelled
			errJoin = errors.Join(errJoin, batch.SaveTimer(ctx, *timer))
			t := *timer
			batch.AddPostFlushAction(ctx, func() { engine.timerManager.removeTimer(t) })
		}
		errJoin = errors.Join(errJoin, batch.DeleteProcessInstance(ctx, st.instance.Key))
		return errJoin
	}

	errJoin = errors.Join(errJoin, batch.SaveProcessInstance(ctx, *st.instance))
	for _, key := range st.order {
		execution := st.executions[key]
		execution.DropTransientVariables()
		errJoin = errors.Join(errJoin, batch.SaveExecution(ctx, *execution))
	}
	for _, subscription := range st.subscriptions {
		errJoin = errors.Join(errJoin, batch.SaveEventSubscription(ctx, *subscription))
	}
	for _, timer := range st.timers {
		errJoin = errors.Join(errJoin, batch.SaveTimer(ctx, *timer))
		t := *timer
		switch t.TimerState {
		case runtime.TimerStateCreated:
			batch.AddPostFlushAction(ctx, func() { engine.timerManager.registerTimer(t) })
		case runtime.TimerStateCancelled:
			batch.AddPostFlushAction(ctx, func() { engine.timerManager.removeTimer(t) })
		}
	}
	return errJoin
}

// completeExecution marks the execution completed, releases everything it
// guarded or owned and performs the parent join check.
func (engine *Engine) completeExecution(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution) error {
	if execution.IsEnded() {
		return nil
	}
	execution.State = runtime.ActivityStateCompleted
	engine.releaseGuards(st, execution)
	if execution.IsScope {
		engine.withdrawOwnedSubscriptions(st, execution)
	}
	if execution.IsRoot() {
		return engine.completeInstance(ctx, op, st)
	}
	if err := engine.noteMultiInstanceItemEnd(ctx, op, st, execution); err != nil {
		return err
	}
	return engine.tryCompleteScope(ctx, op, st, st.execution(execution.ParentKey))
}

// tryCompleteScope completes the scope once its last child has ended;
// join semantics for concurrent siblings.
func (engine *Engine) tryCompleteScope(ctx context.Context, op *operation, st *instanceState, scope *runtime.Execution) error {
	if scope == nil || scope.IsEnded() {
		return nil
	}
	for _, child := range st.children(scope.Key) {
		if !child.IsEnded() {
			return nil
		}
		if child.State == runtime.ActivityStateFailed {
			return nil
		}
	}
	return engine.completeExecution(ctx, op, st, scope)
}

func (engine *Engine) completeInstance(ctx context.Context, op *operation, st *instanceState) error {
	st.instance.State = runtime.ActivityStateCompleted
	engine.metrics.ProcessesEnded.Add(ctx, 1)
	engine.metrics.ProcessesRunning.Add(ctx, -1)

	root := st.root()
	if root.SuperExecutionKey == 0 {
		return nil
	}
	callerSt, err := engine.loadState(ctx, op, root.SuperInstanceKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	callExecution := callerSt.execution(root.SuperExecutionKey)
	if callExecution == nil || callExecution.IsEnded() {
		return nil
	}
	return engine.leaveCalledInstance(ctx, op, callerSt, callExecution, st, false)
}

// terminateExecution cancels the execution and its entire subtree,
// removing owned subscriptions bottom-up and cancelling called instances
// reached through super-execution links.
func (engine *Engine) terminateExecution(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution) error {
	return engine.terminateExecutionSkipping(ctx, op, st, execution, 0)
}

func (engine *Engine) terminateExecutionSkipping(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution, skipInstanceKey int64) error {
	if execution.IsEnded() {
		return nil
	}
	children := st.children(execution.Key)
	for i := len(children) - 1; i >= 0; i-- {
		if err := engine.terminateExecutionSkipping(ctx, op, st, children[i], skipInstanceKey); err != nil {
			return err
		}
	}
	if err := engine.cancelCalledInstance(ctx, op, execution, skipInstanceKey); err != nil {
		return err
	}
	execution.State = runtime.ActivityStateTerminated
	engine.releaseGuards(st, execution)
	if execution.IsScope {
		engine.withdrawOwnedSubscriptions(st, execution)
	}
	return nil
}

// cancelCalledInstance terminates the instance invoked by given call
// execution, when one exists.
func (engine *Engine) cancelCalledInstance(ctx context.Context, op *operation, callExecution *runtime.Execution, skipInstanceKey int64) error {
	var calledSt *instanceState
	for _, candidate := range op.states {
		if !candidate.deleted && candidate.root() != nil && candidate.root().SuperExecutionKey == callExecution.Key {
			calledSt = candidate
			break
		}
	}
	if calledSt == nil {
		calleeRoot, err := engine.persistence.FindSuperExecutionCallee(ctx, callExecution.Key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("failed to find called instance of execution %d: %w", callExecution.Key, err)
		}
		calledSt, err = engine.loadState(ctx, op, calleeRoot.ProcessInstanceKey)
		if err != nil {
			return err
		}
	}
	if calledSt.deleted || calledSt.instance.Key == skipInstanceKey {
		return nil
	}
	if calledSt.instance.State != runtime.ActivityStateActive {
		return nil
	}
	calledSt.instance.State = runtime.ActivityStateTerminated
	engine.metrics.ProcessesRunning.Add(ctx, -1)
	return engine.terminateExecutionSkipping(ctx, op, calledSt, calledSt.root(), skipInstanceKey)
}

// releaseGuards withdraws boundary subscriptions and cancels timers
// guarding given execution.
func (engine *Engine) releaseGuards(st *instanceState, execution *runtime.Execution) {
	for _, subscription := range st.subscriptionsGuarding(execution.Key) {
		subscription.State = runtime.ActivityStateWithdrawn
	}
	for _, timer := range st.timers {
		if timer.GuardedExecutionKey == execution.Key && timer.TimerState == runtime.TimerStateCreated {
			timer.TimerState = runtime.TimerStateCancelled
		}
	}
}

// withdrawOwnedSubscriptions removes everything the exiting scope owned.
func (engine *Engine) withdrawOwnedSubscriptions(st *instanceState, scope *runtime.Execution) {
	for _, subscription := range st.subscriptions {
		if subscription.ExecutionKey == scope.Key && subscription.State == runtime.ActivityStateActive {
			subscription.State = runtime.ActivityStateWithdrawn
		}
	}
	for _, timer := range st.timers {
		if timer.ExecutionKey == scope.Key && timer.TimerState == runtime.TimerStateCreated {
			timer.TimerState = runtime.TimerStateCancelled
		}
	}
}

// DeleteProcessInstance removes the instance tree and cascades upward
// through super-execution links: the calling execution's subtree is
// terminated, and the calling instance itself is deleted when nothing
// active remains in it. The cascade never touches sibling branches.
func (engine *Engine) DeleteProcessInstance(ctx context.Context, processInstanceKey int64) error {
	ctx, span := engine.tracer.Start(ctx, fmt.Sprintf("delete-instance:%d", processInstanceKey))
	defer span.End()

	op := engine.newOperation()
	st, err := engine.loadState(ctx, op, processInstanceKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &StateError{Key: processInstanceKey, State: "DELETED", Msg: "process instance does not exist"}
		}
		return err
	}
	if err := engine.deleteInstanceCascade(ctx, op, st); err != nil {
		return err
	}
	return engine.commit(ctx, op)
}

func (engine *Engine) deleteInstanceCascade(ctx context.Context, op *operation, st *instanceState) error {
	root := st.root()
	if err := engine.terminateExecutionSkipping(ctx, op, st, root, 0); err != nil {
		return err
	}
	if st.instance.State == runtime.ActivityStateActive {
		engine.metrics.ProcessesRunning.Add(ctx, -1)
	}
	st.instance.State = runtime.ActivityStateTerminated
	st.deleted = true

	if root.SuperExecutionKey == 0 {
		return nil
	}
	callerSt, err := engine.loadState(ctx, op, root.SuperInstanceKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	callExecution := callerSt.execution(root.SuperExecutionKey)
	if callExecution != nil && !callExecution.IsEnded() {
		if err := engine.terminateExecutionSkipping(ctx, op, callerSt, callExecution, st.instance.Key); err != nil {
			return err
		}
	}
	if !callerSt.deleted && !callerSt.hasActiveExecutions() {
		return engine.deleteInstanceCascade(ctx, op, callerSt)
	}
	return nil
}

// SuspendExecution freezes the execution and all its descendants; variable
// mutations against a suspended subtree fail with a StateError.
func (engine *Engine) SuspendExecution(ctx context.Context, executionKey int64) error {
	return engine.setExecutionSuspended(ctx, executionKey, true)
}

// ActivateExecution lifts a prior suspension.
func (engine *Engine) ActivateExecution(ctx context.Context, executionKey int64) error {
	return engine.setExecutionSuspended(ctx, executionKey, false)
}

func (engine *Engine) setExecutionSuspended(ctx context.Context, executionKey int64, suspended bool) error {
	op := engine.newOperation()
	stored, err := engine.persistence.FindExecutionByKey(ctx, executionKey)
	if err != nil {
		return errors.Join(newEngineErrorf("failed to find execution with key: %d", executionKey), err)
	}
	st, err := engine.loadState(ctx, op, stored.ProcessInstanceKey)
	if err != nil {
		return err
	}
	execution := st.execution(executionKey)
	if execution == nil || execution.IsEnded() {
		return &StateError{Key: executionKey, State: string(stored.State), Msg: "execution has ended"}
	}
	engine.propagateSuspended(st, execution, suspended)
	return engine.commit(ctx, op)
}

// SuspendProcessInstance suspends the whole instance tree.
func (engine *Engine) SuspendProcessInstance(ctx context.Context, processInstanceKey int64) error {
	return engine.setInstanceSuspended(ctx, processInstanceKey, true)
}

func (engine *Engine) ActivateProcessInstance(ctx context.Context, processInstanceKey int64) error {
	return engine.setInstanceSuspended(ctx, processInstanceKey, false)
}

func (engine *Engine) setInstanceSuspended(ctx context.Context, processInstanceKey int64, suspended bool) error {
	op := engine.newOperation()
	st, err := engine.loadState(ctx, op, processInstanceKey)
	if err != nil {
		return err
	}
	if st.instance.State != runtime.ActivityStateActive {
		return &StateError{Key: processInstanceKey, State: string(st.instance.State), Msg: "process instance is not active"}
	}
	engine.propagateSuspended(st, st.root(), suspended)
	return engine.commit(ctx, op)
}

func (engine *Engine) propagateSuspended(st *instanceState, execution *runtime.Execution, suspended bool) {
	execution.Suspended = suspended
	for _, child := range st.children(execution.Key) {
		engine.propagateSuspended(st, child, suspended)
	}
}
