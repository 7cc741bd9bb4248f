// Package detail owns the authoritative in-memory copy of one fault
// report while a detail surface is active, and performs transition
// requests against the remote authority.
package detail

import (
	"context"

	"faultline/internal/domain"
	"faultline/internal/gateway"
	"faultline/internal/workflow"
)

// Orchestrator holds the single writable copy of a report. It never sets
// status locally; the only way status visibly changes is through a
// successful reload after the authority confirmed the mutation.
//
// One logical caller drives an Orchestrator at a time, so single-flight
// is an in-memory flag rather than a lock.
type Orchestrator struct {
	gw gateway.Gateway

	report  domain.FaultReport
	actor   gateway.Actor
	actions []workflow.TransitionAction

	loaded   bool
	updating bool
	lastErr  error
}

func New(gw gateway.Gateway) *Orchestrator {
	return &Orchestrator{gw: gw}
}

// Load fetches the acting user and the report, then recomputes the
// candidate transition list. On failure the previously displayed report
// stays visible, the error is recorded, and no actions are offered:
// when identity or report state is unknown, nothing may be proposed.
func (o *Orchestrator) Load(ctx context.Context, id string) error {
	actor, err := o.gw.FetchActor(ctx)
	if err != nil {
		o.failLoad(err)
		return err
	}
	report, err := o.gw.FetchReport(ctx, id)
	if err != nil {
		o.failLoad(err)
		return err
	}
	o.actor = actor
	o.report = report
	o.loaded = true
	o.lastErr = nil
	o.recompute()
	return nil
}

func (o *Orchestrator) failLoad(err error) {
	o.lastErr = err
	o.actions = nil
}

func (o *Orchestrator) recompute() {
	isOwner := o.report.CreatedBy != "" && o.report.CreatedBy == o.actor.ID
	o.actions = workflow.Candidates(o.report.Status, o.actor.Role, isOwner)
}

// RequestTransition proposes a status change to the authority. It is a
// no-op while a previous request is still outstanding. Regardless of the
// mutation outcome, the report is reloaded exactly once afterward so the
// client resynchronizes with ground truth; the mutation error, if any,
// is returned for classification by the caller.
func (o *Orchestrator) RequestTransition(ctx context.Context, id string, target domain.Status) error {
	if o.updating {
		return nil
	}
	o.updating = true
	defer func() { o.updating = false }()

	mutErr := o.gw.MutateStatus(ctx, id, target)
	if err := o.Load(ctx, id); err != nil && mutErr == nil {
		return nil // last known good stays visible; Err carries the reload failure
	}
	return mutErr
}

// Report returns the last known good copy of the report.
func (o *Orchestrator) Report() domain.FaultReport { return o.report }

// Actor returns the acting user as of the last successful load.
func (o *Orchestrator) Actor() gateway.Actor { return o.actor }

// Actions returns the current candidate transitions (base table plus
// role supplements). Session-local suppression is the execution bar's
// concern, not the orchestrator's.
func (o *Orchestrator) Actions() []workflow.TransitionAction { return o.actions }

// Updating reports whether a transition request is in flight.
func (o *Orchestrator) Updating() bool { return o.updating }

// Loaded reports whether at least one load has succeeded.
func (o *Orchestrator) Loaded() bool { return o.loaded }

// Err returns the most recent load failure, nil after a successful load.
func (o *Orchestrator) Err() error { return o.lastErr }
