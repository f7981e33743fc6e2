package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/agentrt/internal/jobs"
	"github.com/haasonsaas/agentrt/internal/toolparse/fallback"
	"github.com/haasonsaas/agentrt/pkg/models"
)

// defaultMaxIterations bounds a turn's tool-call round-trips when
// AgentConfig.MaxIterations is left at its zero value.
const defaultMaxIterations = 5

// ToolCallExtractor pulls zero or more tool invocations out of a complete
// LLM response. Concrete implementations live in internal/toolparse (XML
// strategy, per-provider JSON dialects); the dispatcher only depends on
// this narrow interface so it never imports a specific provider format.
type ToolCallExtractor interface {
	Extract(turnID, text string) (cleanText string, calls []*ToolInvocation, err error)
}

// handleUserMessageReceived implements spec.md §4.8.1: append the message
// to conversation history and move the turn into LLM processing.
func handleUserMessageReceived(ctx context.Context, d *Dispatcher, ev Event) ([]Event, error) {
	msg := ev.(UserMessageReceived)
	if err := d.Phases.NotifyUserMessageReceived(ctx); err != nil {
		return nil, err
	}

	d.State.ConversationHistory = append(d.State.ConversationHistory, ConversationMessage{
		Role:      "user",
		Content:   msg.Content,
		Files:     msg.Files,
		Timestamp: time.Now(),
	})

	turnID := fmt.Sprintf("%s-turn-%d", d.AgentID, d.State.TurnIndex)
	d.State.TurnIndex++
	d.State.ActiveTurnID = turnID
	d.State.IterIndex = 0
	d.State.CurrentTurnResults = nil

	return []Event{LLMUserMessageReady{TurnID: turnID}}, nil
}

// handleInterAgentMessageReceived implements spec.md §4.8.7: surface the
// handoff to subscribers, then fold it into the normal user-message path
// so the rest of the turn pipeline doesn't need a second code path.
func handleInterAgentMessageReceived(ctx context.Context, d *Dispatcher, ev Event) ([]Event, error) {
	msg := ev.(InterAgentMessageReceived)
	d.Notifier.InterAgentMessageReceived(ctx, d.AgentID, msg.FromAgentID, msg.Content)
	return []Event{UserMessageReceived{Content: msg.Content, Files: msg.Files}}, nil
}

// handleLLMUserMessageReady implements spec.md §4.8.2: send the current
// conversation history to the configured LLM client and enqueue its
// complete response for analysis.
func handleLLMUserMessageReady(ctx context.Context, d *Dispatcher, ev Event) ([]Event, error) {
	ready := ev.(LLMUserMessageReady)

	maxIterations := d.Config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	d.State.IterIndex++
	if d.State.IterIndex > maxIterations {
		return handleMaxIterationsExceeded(ctx, d, ready.TurnID)
	}

	if err := d.Phases.NotifyLLMRequestSent(ctx); err != nil {
		return nil, err
	}

	if d.LLM == nil {
		return nil, fmt.Errorf("agent %s: no LLM client configured", d.AgentID)
	}

	text, err := d.LLM.Complete(ctx, ready.TurnID, d.State.ConversationHistory)
	if err != nil {
		return []Event{LLMCompleteResponseReceived{TurnID: ready.TurnID, IsError: true, Err: err}}, nil
	}
	return []Event{LLMCompleteResponseReceived{TurnID: ready.TurnID, Text: text}}, nil
}

// handleMaxIterationsExceeded implements the ErrMaxIterations edge case:
// rather than erroring the agent out, it synthesizes a best-effort answer
// from the turn's accumulated tool output (spec.md §3's supplemented
// iteration-cap behavior) and closes the turn exactly as a normal
// zero-tool-call response would.
func handleMaxIterationsExceeded(ctx context.Context, d *Dispatcher, turnID string) ([]Event, error) {
	summaries := make([]fallback.ToolResultSummary, 0, len(d.State.CurrentTurnResults))
	for _, r := range d.State.CurrentTurnResults {
		summaries = append(summaries, fallback.ToolResultSummary{
			ToolName: r.ToolName,
			Content:  r.Content,
			Success:  !r.IsError,
		})
	}
	text := fallback.SynthesizeFallback(fallback.DefaultFallbackConfig(), summaries)

	d.State.ConversationHistory = append(d.State.ConversationHistory, ConversationMessage{
		Role:      "assistant",
		Content:   text,
		Timestamp: time.Now(),
	})
	d.Notifier.AssistantComplete(ctx, d.AgentID, turnID, text)
	if err := d.Phases.NotifyTurnIdle(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleLLMCompleteResponseReceived implements spec.md §4.8.3: run the
// agent's configured LLMResponseProcessors first (e.g. a todo-list
// scraper); if none claims the response, extract tool calls, and failing
// that, surface it as a plain assistant-complete notification.
func handleLLMCompleteResponseReceived(ctx context.Context, d *Dispatcher, ev Event) ([]Event, error) {
	resp := ev.(LLMCompleteResponseReceived)
	if err := d.Phases.NotifyLLMResponseReceived(ctx); err != nil {
		return nil, err
	}

	if resp.IsError {
		return nil, resp.Err
	}

	handled, err := d.LLMResponses.Process(ctx, d.Config.LLMResponseProcessors, d.State, resp.Text)
	if err != nil {
		return nil, err
	}
	if handled {
		return []Event{LLMUserMessageReady{TurnID: resp.TurnID}}, nil
	}

	var calls []*ToolInvocation
	cleanText := resp.Text
	if d.Extractor != nil {
		var extractErr error
		cleanText, calls, extractErr = d.Extractor.Extract(resp.TurnID, resp.Text)
		if extractErr != nil {
			return nil, extractErr
		}
	}

	d.State.ConversationHistory = append(d.State.ConversationHistory, ConversationMessage{
		Role:      "assistant",
		Content:   cleanText,
		ToolCalls: dereferenceInvocations(calls),
		Timestamp: time.Now(),
	})

	if len(calls) == 0 {
		d.Notifier.AssistantComplete(ctx, d.AgentID, resp.TurnID, cleanText)
		if err := d.Phases.NotifyTurnIdle(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if len(calls) > 1 {
		d.State.ActiveMultiToolCallTurn = &MultiToolCallTurn{
			TurnID:      resp.TurnID,
			Invocations: calls,
			Results:     make(map[string]*ToolResultEvent),
		}
	}

	follow := make([]Event, 0, len(calls))
	for _, inv := range calls {
		inv.TurnID = resp.TurnID
		follow = append(follow, PendingToolInvocation{Invocation: inv})
	}
	return follow, nil
}

// handlePendingToolInvocation implements spec.md §4.8.4: auto-execute when
// configured, otherwise consult the ApprovalChecker and either fast-path
// to execution, deny immediately, or park the invocation awaiting an
// external decision.
func handlePendingToolInvocation(ctx context.Context, d *Dispatcher, ev Event) ([]Event, error) {
	pending := ev.(PendingToolInvocation)
	inv := pending.Invocation

	if d.Config.AutoExecuteTools {
		return []Event{ApprovedToolInvocation{Invocation: inv}}, nil
	}

	toolCall := models.ToolCall{ID: inv.ID, Name: inv.ToolName, Input: inv.RawArgs}
	decision, reason := d.Approval.Check(ctx, d.AgentID, toolCall)

	switch decision {
	case ApprovalAllowed:
		return []Event{ApprovedToolInvocation{Invocation: inv}}, nil
	case ApprovalDenied:
		inv.IsDenied = true
		inv.DenyReason = reason
		if err := d.Phases.NotifyToolDenied(ctx); err != nil {
			return nil, err
		}
		d.Notifier.ToolDenied(ctx, d.AgentID, inv, "policy", reason)
		return []Event{ToolResultArrived{Result: &ToolResultEvent{
			InvocationID: inv.ID,
			TurnID:       inv.TurnID,
			ToolName:     inv.ToolName,
			Content:      "tool execution denied: " + reason,
			IsError:      true,
			FinishedAt:   time.Now(),
		}}}, nil
	default: // ApprovalPending
		if d.State.PendingToolApprovals == nil {
			d.State.PendingToolApprovals = make(map[string]*ToolInvocation)
		}
		d.State.PendingToolApprovals[inv.ID] = inv
		if err := d.Phases.NotifyToolApprovalRequired(ctx); err != nil {
			return nil, err
		}
		d.Notifier.ToolApprovalRequested(ctx, d.AgentID, inv, reason)
		if _, err := d.Approval.CreateApprovalRequest(ctx, d.AgentID, "", toolCall, reason); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// handleApprovedToolInvocation implements the auto-execute / allowlisted
// fast path of spec.md §4.8.4: nothing more to decide, move straight to
// execution.
func handleApprovedToolInvocation(ctx context.Context, d *Dispatcher, ev Event) ([]Event, error) {
	approved := ev.(ApprovedToolInvocation)
	return []Event{ExecuteToolInvocation{Invocation: approved.Invocation}}, nil
}

// handleToolExecutionApproval implements spec.md §4.8.5: resolve a
// previously parked invocation against an external approve/deny decision.
func handleToolExecutionApproval(ctx context.Context, d *Dispatcher, ev Event) ([]Event, error) {
	decision := ev.(ToolExecutionApproval)
	inv, ok := d.State.PendingToolApprovals[decision.InvocationID]
	if !ok {
		d.log.Warn("approval decision for unknown invocation", "agent_id", d.AgentID, "invocation_id", decision.InvocationID)
		return nil, nil
	}
	delete(d.State.PendingToolApprovals, decision.InvocationID)

	if !decision.Approved {
		inv.IsDenied = true
		inv.DenyReason = decision.Reason
		if err := d.Phases.NotifyToolDenied(ctx); err != nil {
			return nil, err
		}
		d.Notifier.ToolDenied(ctx, d.AgentID, inv, decision.DecidedBy, decision.Reason)
		return []Event{ToolResultArrived{Result: &ToolResultEvent{
			InvocationID: inv.ID,
			TurnID:       inv.TurnID,
			ToolName:     inv.ToolName,
			Content:      "tool execution denied: " + decision.Reason,
			IsError:      true,
			FinishedAt:   time.Now(),
		}}}, nil
	}

	d.Notifier.ToolApproved(ctx, d.AgentID, inv, decision.DecidedBy)
	return []Event{ApprovedToolInvocation{Invocation: inv}}, nil
}

// handleExecuteToolInvocation implements spec.md §4.8.6's execution half:
// run the tool through the FactoryToolRegistry, apply the result guard,
// and enqueue the outcome for reassembly. Tools matching
// RuntimeOptions.AsyncTools run as a background job and report their
// result later via a second ExecuteToolInvocation-independent enqueue
// rather than blocking this handler.
func handleExecuteToolInvocation(ctx context.Context, d *Dispatcher, ev Event) ([]Event, error) {
	exec := ev.(ExecuteToolInvocation)
	inv := exec.Invocation

	opts := d.Config.RuntimeOptions
	if opts.MaxToolCalls > 0 && len(d.State.CurrentTurnResults) >= opts.MaxToolCalls {
		event := &ToolResultEvent{
			InvocationID: inv.ID,
			TurnID:       inv.TurnID,
			ToolName:     inv.ToolName,
			Content:      fmt.Sprintf("tool call limit exceeded (%d per turn)", opts.MaxToolCalls),
			IsError:      true,
			FinishedAt:   time.Now(),
		}
		d.Notifier.ToolExecutionFailed(ctx, d.AgentID, event)
		return []Event{ToolResultArrived{Result: event}}, nil
	}

	if err := d.ToolPreprocessors.Run(ctx, d.Config.ToolInvocationPreprocessors, d.State, inv); err != nil {
		return nil, err
	}

	if err := d.Phases.NotifyToolExecutionStarted(ctx); err != nil {
		return nil, err
	}
	d.Notifier.ToolExecutionStarted(ctx, d.AgentID, inv)

	if opts.JobStore != nil && isAsyncTool(opts, inv.ToolName, nil) {
		d.runToolAsync(ctx, inv)
		return nil, nil
	}

	event := d.runToolSync(ctx, inv)

	if err := d.ToolResultProcs.Run(ctx, d.Config.ToolExecutionResultProcessors, d.State, event); err != nil {
		return nil, err
	}

	if event.IsError {
		d.Notifier.ToolExecutionFailed(ctx, d.AgentID, event)
	} else {
		d.Notifier.ToolExecutionSucceeded(ctx, d.AgentID, event)
	}

	return []Event{ToolResultArrived{Result: event}}, nil
}

// runToolSync executes one tool invocation inline, retrying up to
// RuntimeOptions.ToolMaxAttempts times (pausing ToolRetryBackoff between
// attempts) and bounding each attempt by ToolTimeout when set.
func (d *Dispatcher) runToolSync(ctx context.Context, inv *ToolInvocation) *ToolResultEvent {
	opts := d.Config.RuntimeOptions
	attempts := opts.ToolMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var result models.ToolResult
	var execErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if opts.ToolTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, opts.ToolTimeout)
		}
		result, execErr = d.Tools.Execute(callCtx, inv.ToolName, inv.RawArgs)
		if cancel != nil {
			cancel()
		}
		if execErr == nil {
			break
		}
		if attempt < attempts && opts.ToolRetryBackoff > 0 {
			select {
			case <-time.After(opts.ToolRetryBackoff):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	if execErr != nil {
		return &ToolResultEvent{
			InvocationID: inv.ID,
			TurnID:       inv.TurnID,
			ToolName:     inv.ToolName,
			Content:      fmt.Sprintf("executing tool %q: %v", inv.ToolName, execErr),
			IsError:      true,
			FinishedAt:   time.Now(),
		}
	}

	guarded := guardToolResult(d.ResultGuard, inv.ToolName, models.ToolResult{
		ToolCallID: inv.ID,
		Content:    result.Content,
		IsError:    result.IsError,
	}, nil)

	return &ToolResultEvent{
		InvocationID: inv.ID,
		TurnID:       inv.TurnID,
		ToolName:     inv.ToolName,
		Content:      guarded.Content,
		IsError:      guarded.IsError,
		Files:        result.Files,
		FinishedAt:   time.Now(),
	}
}

// runToolAsync records inv as a queued Job in RuntimeOptions.JobStore and
// runs it in a goroutine bounded by Dispatcher.asyncSem (sized by
// ToolParallelism), feeding its eventual result back through the normal
// ToolResultArrived path so reassembly doesn't need an async-aware branch.
func (d *Dispatcher) runToolAsync(ctx context.Context, inv *ToolInvocation) {
	opts := d.Config.RuntimeOptions
	job := &jobs.Job{
		ID:         inv.ID,
		ToolName:   inv.ToolName,
		ToolCallID: inv.ID,
		Status:     jobs.StatusQueued,
		CreatedAt:  time.Now(),
	}
	if err := opts.JobStore.Create(ctx, job); err != nil {
		d.log.Warn("failed to record async tool job", "agent_id", d.AgentID, "tool", inv.ToolName, "error", err)
	}

	go func() {
		select {
		case d.asyncSem <- struct{}{}:
			defer func() { <-d.asyncSem }()
		case <-ctx.Done():
			return
		}

		job.Status = jobs.StatusRunning
		job.StartedAt = time.Now()
		_ = opts.JobStore.Update(ctx, job)

		event := d.runToolSync(ctx, inv)

		job.FinishedAt = time.Now()
		if event.IsError {
			job.Status = jobs.StatusFailed
			job.Error = event.Content
		} else {
			job.Status = jobs.StatusSucceeded
			job.Result = &models.ToolResult{ToolCallID: inv.ID, Content: event.Content, IsError: event.IsError}
		}
		_ = opts.JobStore.Update(ctx, job)

		if event.IsError {
			d.Notifier.ToolExecutionFailed(ctx, d.AgentID, event)
		} else {
			d.Notifier.ToolExecutionSucceeded(ctx, d.AgentID, event)
		}
		if err := d.Queues.Enqueue(ctx, ToolResultArrived{Result: event}); err != nil {
			d.log.Warn("failed to enqueue async tool result", "agent_id", d.AgentID, "tool", inv.ToolName, "error", err)
		}
	}()
}

// handleToolResultArrived implements spec.md §4.8.6's reassembly half: a
// single tool call folds straight back into the conversation; a
// multi-tool-call turn waits until every invocation has resolved, then
// reassembles results in the LLM's original call order before continuing
// the turn.
func handleToolResultArrived(ctx context.Context, d *Dispatcher, ev Event) ([]Event, error) {
	arrived := ev.(ToolResultArrived)
	result := arrived.Result

	if err := d.Phases.NotifyToolResultReady(ctx); err != nil {
		return nil, err
	}

	d.State.CurrentTurnResults = append(d.State.CurrentTurnResults, result)

	turn := d.State.ActiveMultiToolCallTurn
	if turn == nil || turn.TurnID != result.TurnID {
		d.State.ConversationHistory = append(d.State.ConversationHistory, toolResultMessage(result))
		return []Event{LLMUserMessageReady{TurnID: result.TurnID}}, nil
	}

	if turn.Results == nil {
		turn.Results = make(map[string]*ToolResultEvent)
	}
	turn.Results[result.InvocationID] = result

	if turn.Pending() {
		return nil, nil
	}

	for _, res := range turn.OrderedResults() {
		d.State.ConversationHistory = append(d.State.ConversationHistory, toolResultMessage(res))
	}
	d.State.ActiveMultiToolCallTurn = nil
	return []Event{LLMUserMessageReady{TurnID: result.TurnID}}, nil
}

func toolResultMessage(result *ToolResultEvent) ConversationMessage {
	role := "tool"
	if result.IsError {
		role = "tool_error"
	}
	return ConversationMessage{
		Role:      role,
		Content:   result.Content,
		Files:     result.Files,
		Timestamp: result.FinishedAt,
	}
}

func dereferenceInvocations(calls []*ToolInvocation) []ToolInvocation {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolInvocation, len(calls))
	for i, c := range calls {
		out[i] = *c
	}
	return out
}
