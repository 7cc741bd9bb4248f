package workflow_test

import (
	"testing"

	"faultline/internal/domain"
	"faultline/internal/workflow"
)

func TestNoDuplicateTargets(t *testing.T) {
	for _, status := range domain.Statuses {
		for _, role := range domain.Roles {
			for _, owner := range []bool{false, true} {
				seen := map[domain.Status]bool{}
				for _, a := range workflow.Candidates(status, role, owner) {
					if seen[a.Target] {
						t.Fatalf("duplicate target %s for (%s, %s, owner=%v)", a.Target, status, role, owner)
					}
					seen[a.Target] = true
				}
			}
		}
	}
}

func TestCandidatesAreValidEdges(t *testing.T) {
	for _, status := range domain.Statuses {
		for _, role := range domain.Roles {
			for _, owner := range []bool{false, true} {
				for _, a := range workflow.Candidates(status, role, owner) {
					if !a.Target.Valid() {
						t.Fatalf("unknown target %s from %s", a.Target, status)
					}
					if !workflow.ValidEdge(status, a.Target) {
						t.Fatalf("candidate %s -> %s not in transition graph", status, a.Target)
					}
					if a.Target == status {
						t.Fatalf("self transition offered at %s for %s", status, role)
					}
				}
			}
		}
	}
}

func TestTerminalStatusesHaveNoActions(t *testing.T) {
	terminals := []domain.Status{domain.StatusClosed, domain.StatusCancelled, domain.StatusNotPossible}
	for _, status := range terminals {
		for _, role := range domain.Roles {
			for _, owner := range []bool{false, true} {
				if got := workflow.Candidates(status, role, owner); len(got) != 0 {
					t.Fatalf("expected no actions from terminal %s for %s, got %v", status, role, got)
				}
			}
		}
	}
}

func TestNonOwnerResidentGetsNothing(t *testing.T) {
	for _, status := range domain.Statuses {
		if got := workflow.Candidates(status, domain.RoleResident, false); len(got) != 0 {
			t.Fatalf("non-owner resident offered actions at %s: %v", status, got)
		}
	}
}

func TestOwnerResidentCloseAtOpen(t *testing.T) {
	got := workflow.Candidates(domain.StatusOpen, domain.RoleResident, true)
	if len(got) != 1 {
		t.Fatalf("expected exactly one action, got %v", got)
	}
	a := got[0]
	if a.Target != domain.StatusCancelled {
		t.Fatalf("expected owner-close to target cancelled, got %s", a.Target)
	}
	if !a.Destructive || a.ConfirmTitle == "" || a.ConfirmBody == "" {
		t.Fatalf("owner-close must be destructive with confirmation texts: %+v", a)
	}
}

func TestServiceSupplementsMerged(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusInProgress, domain.StatusIncomplete} {
		got := workflow.Candidates(status, domain.RoleServiceCompany, false)
		want := map[domain.Status]bool{
			domain.StatusCompleted: false,
			domain.StatusWaiting:   false,
			domain.StatusCancelled: false,
		}
		for _, a := range got {
			if _, ok := want[a.Target]; ok {
				want[a.Target] = true
			}
			if a.Target == domain.StatusCancelled && !a.Destructive {
				t.Fatalf("cancel supplement must be destructive")
			}
		}
		for target, present := range want {
			if !present {
				t.Fatalf("missing supplemental target %s at %s", target, status)
			}
		}
	}
}

func TestSupplementsDoNotDuplicateBase(t *testing.T) {
	// in_progress already offers waiting in the base table; the merge
	// keeps the base entry and drops the supplemental one.
	got := workflow.Candidates(domain.StatusInProgress, domain.RoleServiceCompany, false)
	count := 0
	for _, a := range got {
		if a.Target == domain.StatusWaiting {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one waiting action, got %d", count)
	}
}

func TestSupplementsOnlyForServiceCompany(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleMaintenance, domain.RoleHousingCompany, domain.RoleAdmin} {
		for _, a := range workflow.Candidates(domain.StatusInProgress, role, false) {
			if a.Target == domain.StatusCompleted {
				t.Fatalf("%s must not complete work directly", role)
			}
		}
	}
}

func TestAllowedIsDeterministic(t *testing.T) {
	first := workflow.Candidates(domain.StatusOpen, domain.RoleAdmin, false)
	second := workflow.Candidates(domain.StatusOpen, domain.RoleAdmin, false)
	if len(first) != len(second) {
		t.Fatalf("non-deterministic candidate list")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("candidate order changed between calls: %v vs %v", first[i], second[i])
		}
	}
}

func TestDestructiveActionsCarryConfirmTexts(t *testing.T) {
	for _, status := range domain.Statuses {
		for _, role := range domain.Roles {
			for _, a := range workflow.Candidates(status, role, true) {
				if a.Destructive && (a.ConfirmTitle == "" || a.ConfirmBody == "") {
					t.Fatalf("destructive action %s at %s missing confirm texts", a.Target, status)
				}
				if !a.Destructive && (a.ConfirmTitle != "" || a.ConfirmBody != "") {
					t.Fatalf("non-destructive action %s at %s carries confirm texts", a.Target, status)
				}
			}
		}
	}
}

func TestValidEdgeRejectsUnknown(t *testing.T) {
	if workflow.ValidEdge(domain.StatusClosed, domain.StatusOpen) {
		t.Fatalf("closed must have no outgoing edges")
	}
	if workflow.ValidEdge(domain.StatusCreated, domain.StatusResolved) {
		t.Fatalf("created -> resolved must not be a valid edge")
	}
}
