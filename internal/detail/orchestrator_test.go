package detail_test

import (
	"context"
	"errors"
	"testing"

	"faultline/internal/detail"
	"faultline/internal/domain"
	"faultline/internal/gateway"
)

// fakeGateway is an in-memory authority recording call counts.
type fakeGateway struct {
	actor     gateway.Actor
	report    domain.FaultReport
	actorErr  error
	reportErr error
	mutateErr error

	fetchReports int
	fetchActors  int
	mutations    int

	onMutate func(target domain.Status)
}

func (f *fakeGateway) FetchReport(ctx context.Context, id string) (domain.FaultReport, error) {
	f.fetchReports++
	if f.reportErr != nil {
		return domain.FaultReport{}, f.reportErr
	}
	return f.report, nil
}

func (f *fakeGateway) FetchActor(ctx context.Context) (gateway.Actor, error) {
	f.fetchActors++
	if f.actorErr != nil {
		return gateway.Actor{}, f.actorErr
	}
	return f.actor, nil
}

func (f *fakeGateway) MutateStatus(ctx context.Context, id string, target domain.Status) error {
	f.mutations++
	if f.onMutate != nil {
		f.onMutate(target)
	}
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.report.Status = target
	return nil
}

func newFake(status domain.Status, role domain.Role, owner bool) *fakeGateway {
	createdBy := "someone-else"
	if owner {
		createdBy = "actor-1"
	}
	return &fakeGateway{
		actor:  gateway.Actor{ID: "actor-1", Role: role},
		report: domain.FaultReport{ID: "r-1", Title: "Dripping tap", Status: status, CreatedBy: createdBy},
	}
}

func TestLoadComputesActions(t *testing.T) {
	fake := newFake(domain.StatusOpen, domain.RoleResident, true)
	o := detail.New(fake)
	if err := o.Load(context.Background(), "r-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	actions := o.Actions()
	if len(actions) != 1 || actions[0].Target != domain.StatusCancelled {
		t.Fatalf("expected owner-close action, got %v", actions)
	}
}

func TestLoadFailureOffersNothing(t *testing.T) {
	fake := newFake(domain.StatusOpen, domain.RoleAdmin, false)
	fake.reportErr = &gateway.Error{Code: gateway.CodeNotFound, Message: "gone"}
	o := detail.New(fake)
	if err := o.Load(context.Background(), "r-1"); err == nil {
		t.Fatalf("expected load error")
	}
	if len(o.Actions()) != 0 {
		t.Fatalf("actions offered with unknown report state")
	}
	if o.Err() == nil {
		t.Fatalf("expected stored error")
	}
}

func TestRequestTransitionReloadsExactlyOnce(t *testing.T) {
	for _, mutateErr := range []error{nil, &gateway.Error{Code: gateway.CodeUnavailable}} {
		fake := newFake(domain.StatusOpen, domain.RoleAdmin, false)
		o := detail.New(fake)
		if err := o.Load(context.Background(), "r-1"); err != nil {
			t.Fatalf("load: %v", err)
		}
		fake.mutateErr = mutateErr
		before := fake.fetchReports
		err := o.RequestTransition(context.Background(), "r-1", domain.StatusInProgress)
		if !errors.Is(err, mutateErr) {
			t.Fatalf("expected mutation error %v, got %v", mutateErr, err)
		}
		if got := fake.fetchReports - before; got != 1 {
			t.Fatalf("expected exactly one reload, got %d", got)
		}
	}
}

func TestRequestTransitionSingleFlight(t *testing.T) {
	fake := newFake(domain.StatusOpen, domain.RoleAdmin, false)
	o := detail.New(fake)
	if err := o.Load(context.Background(), "r-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	// re-enter while the first mutation is still in flight
	fake.onMutate = func(domain.Status) {
		fake.onMutate = nil
		if err := o.RequestTransition(context.Background(), "r-1", domain.StatusCancelled); err != nil {
			t.Fatalf("re-entrant call must be a no-op, got %v", err)
		}
	}
	if err := o.RequestTransition(context.Background(), "r-1", domain.StatusInProgress); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if fake.mutations != 1 {
		t.Fatalf("expected a single mutation, got %d", fake.mutations)
	}
	if o.Report().Status != domain.StatusInProgress {
		t.Fatalf("expected reloaded status, got %s", o.Report().Status)
	}
}

func TestStatusOnlyChangesViaReload(t *testing.T) {
	fake := newFake(domain.StatusOpen, domain.RoleAdmin, false)
	o := detail.New(fake)
	if err := o.Load(context.Background(), "r-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	// authority rejects: status must stay as the server reports it
	fake.mutateErr = &gateway.Error{Code: gateway.CodeFailedPrecondition, Message: "stale"}
	if err := o.RequestTransition(context.Background(), "r-1", domain.StatusCancelled); err == nil {
		t.Fatalf("expected mutation error")
	}
	if o.Report().Status != domain.StatusOpen {
		t.Fatalf("status drifted to %s without authority confirmation", o.Report().Status)
	}
}

func TestReloadFailureKeepsLastKnownGood(t *testing.T) {
	fake := newFake(domain.StatusOpen, domain.RoleAdmin, false)
	o := detail.New(fake)
	if err := o.Load(context.Background(), "r-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	fake.onMutate = func(domain.Status) {
		fake.reportErr = &gateway.Error{Code: gateway.CodeUnavailable, Message: "flaky"}
	}
	if err := o.RequestTransition(context.Background(), "r-1", domain.StatusInProgress); err != nil {
		t.Fatalf("mutation succeeded; reload failure is surfaced via Err, got %v", err)
	}
	if o.Report().Status != domain.StatusOpen {
		t.Fatalf("expected previously displayed status, got %s", o.Report().Status)
	}
	if o.Err() == nil {
		t.Fatalf("expected reload error flag")
	}
	if len(o.Actions()) != 0 {
		t.Fatalf("expected no actions while state is unknown")
	}
}

func TestUpdatingClearedAfterFailure(t *testing.T) {
	fake := newFake(domain.StatusOpen, domain.RoleAdmin, false)
	o := detail.New(fake)
	if err := o.Load(context.Background(), "r-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	fake.mutateErr = &gateway.Error{Code: gateway.CodeUnavailable}
	_ = o.RequestTransition(context.Background(), "r-1", domain.StatusInProgress)
	if o.Updating() {
		t.Fatalf("updating flag stuck after failure")
	}
	fake.mutateErr = nil
	if err := o.RequestTransition(context.Background(), "r-1", domain.StatusInProgress); err != nil {
		t.Fatalf("expected retry to proceed: %v", err)
	}
}
