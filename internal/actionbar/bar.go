// Package actionbar drives the transition actions offered on a fault
// report detail surface: it renders the candidate list, gates
// single-flight execution and destructive confirmation, and locally
// suppresses transitions the authority has rejected for this session.
package actionbar

import (
	"context"
	"errors"

	"faultline/internal/detail"
	"faultline/internal/domain"
	"faultline/internal/gateway"
	"faultline/internal/workflow"
)

// Phase is the bar's execution state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConfirmPending
	PhaseExecuting
)

// Alert carries a classified, user-facing failure message. The message
// key is resolved by the caller's label catalog; the bar never renders
// text itself.
type Alert struct {
	Code       gateway.Code
	MessageKey string
	Message    string
}

// Bar is scoped to one detail surface. Its suppression set lives only as
// long as the instance: a remount discards it, so the client re-trusts
// the authorization table instead of hiding options on stale rejections.
type Bar struct {
	orch *detail.Orchestrator

	suppressed map[domain.Status]struct{}
	phase      Phase
	pending    workflow.TransitionAction

	// Notify is invoked exactly once per successful transition so sibling
	// views can refresh their own caches. No payload: collaborators
	// re-fetch, they do not trust a delta.
	Notify func()
	// OnAlert surfaces classified failures. Optional.
	OnAlert func(Alert)
}

func New(orch *detail.Orchestrator) *Bar {
	return &Bar{
		orch:       orch,
		suppressed: make(map[domain.Status]struct{}),
	}
}

// Actions returns the candidate list for the current render: the
// orchestrator's candidates minus this session's suppressed targets.
func (b *Bar) Actions() []workflow.TransitionAction {
	candidates := b.orch.Actions()
	out := make([]workflow.TransitionAction, 0, len(candidates))
	for _, a := range candidates {
		if _, gone := b.suppressed[a.Target]; gone {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Orchestrator returns the detail orchestrator this bar renders.
func (b *Bar) Orchestrator() *detail.Orchestrator { return b.orch }

// Busy reports whether all action buttons should render disabled.
func (b *Bar) Busy() bool { return b.phase == PhaseExecuting }

// Phase returns the bar's current execution state.
func (b *Bar) Phase() Phase { return b.phase }

// Pending returns the destructive action awaiting confirmation.
func (b *Bar) Pending() (workflow.TransitionAction, bool) {
	return b.pending, b.phase == PhaseConfirmPending
}

// Trigger handles a tap on the action targeting the given status.
// Non-destructive actions execute immediately; destructive ones move the
// bar to ConfirmPending without issuing any network call. Taps while not
// idle, or on targets not currently offered, are ignored.
func (b *Bar) Trigger(ctx context.Context, target domain.Status) error {
	if b.phase != PhaseIdle {
		return nil
	}
	action, ok := b.find(target)
	if !ok {
		return nil
	}
	if action.Destructive {
		b.pending = action
		b.phase = PhaseConfirmPending
		return nil
	}
	return b.execute(ctx, action)
}

// Confirm executes the pending destructive action.
func (b *Bar) Confirm(ctx context.Context) error {
	if b.phase != PhaseConfirmPending {
		return nil
	}
	action := b.pending
	b.pending = workflow.TransitionAction{}
	b.phase = PhaseIdle
	return b.execute(ctx, action)
}

// Decline abandons the pending destructive action. No call is issued.
func (b *Bar) Decline() {
	if b.phase != PhaseConfirmPending {
		return
	}
	b.pending = workflow.TransitionAction{}
	b.phase = PhaseIdle
}

func (b *Bar) find(target domain.Status) (workflow.TransitionAction, bool) {
	for _, a := range b.Actions() {
		if a.Target == target {
			return a, true
		}
	}
	return workflow.TransitionAction{}, false
}

func (b *Bar) execute(ctx context.Context, action workflow.TransitionAction) error {
	b.phase = PhaseExecuting
	defer func() { b.phase = PhaseIdle }()

	err := b.orch.RequestTransition(ctx, b.orch.Report().ID, action.Target)
	if err == nil {
		if b.Notify != nil {
			b.Notify()
		}
		return nil
	}
	b.classify(action.Target, err)
	return err
}

// classify translates a mutation failure into session suppression. A
// rejection by the authority proves the transition invalid for the
// current server state, so the action disappears from later renders.
// Transient failures are not evidence of anything and suppress nothing.
func (b *Bar) classify(target domain.Status, err error) {
	var ge *gateway.Error
	if !errors.As(err, &ge) {
		b.alert(Alert{Code: gateway.CodeUnavailable, MessageKey: "fault.error.generic", Message: err.Error()})
		return
	}
	switch ge.Code {
	case gateway.CodePermissionDenied:
		b.suppressed[target] = struct{}{}
		b.alert(Alert{Code: ge.Code, MessageKey: "fault.error.permission_denied", Message: ge.Message})
	case gateway.CodeFailedPrecondition:
		b.suppressed[target] = struct{}{}
		b.alert(Alert{Code: ge.Code, MessageKey: "fault.error.failed_precondition", Message: ge.Message})
	case gateway.CodeNotFound:
		b.alert(Alert{Code: ge.Code, MessageKey: "fault.error.not_found", Message: ge.Message})
	default:
		b.alert(Alert{Code: ge.Code, MessageKey: "fault.error.generic", Message: ge.Message})
	}
}

func (b *Bar) alert(a Alert) {
	if b.OnAlert != nil {
		b.OnAlert(a)
	}
}
