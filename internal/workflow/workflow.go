// Package workflow defines the fault report transition authorization
// table: which lifecycle edges each role may traverse, and how candidate
// actions are presented. The table is the client-visible projection of
// the authority's rules; the server engine enforces the same table, so
// it lives in one place.
package workflow

import "faultline/internal/domain"

// Mode controls the visual emphasis of a transition action.
type Mode string

const (
	ModePrimary   Mode = "primary"
	ModeSecondary Mode = "secondary"
)

// TransitionAction describes one candidate transition. Values are
// ephemeral: recomputed on every status/role change, never persisted.
type TransitionAction struct {
	Target       domain.Status `json:"target"`
	Label        string        `json:"label"`
	Mode         Mode          `json:"mode"`
	Destructive  bool          `json:"destructive,omitempty"`
	ConfirmTitle string        `json:"confirm_title,omitempty"`
	ConfirmBody  string        `json:"confirm_body,omitempty"`
}

func action(target domain.Status, label string, mode Mode) TransitionAction {
	return TransitionAction{Target: target, Label: label, Mode: mode}
}

func destructive(target domain.Status, label, confirmTitle, confirmBody string, mode Mode) TransitionAction {
	return TransitionAction{
		Target:       target,
		Label:        label,
		Mode:         mode,
		Destructive:  true,
		ConfirmTitle: confirmTitle,
		ConfirmBody:  confirmBody,
	}
}

// Allowed returns the ordered base candidate list for (status, role,
// isOwner). It is total: every combination returns a list, possibly
// empty, and never fails. A non-owning resident gets nothing regardless
// of status, and terminal statuses have no outgoing edges for any role.
func Allowed(status domain.Status, role domain.Role, isOwner bool) []TransitionAction {
	if status.Terminal() {
		return nil
	}
	switch role {
	case domain.RoleResident:
		if !isOwner {
			return nil
		}
		return residentActions(status)
	case domain.RoleMaintenance:
		return maintenanceActions(status)
	case domain.RoleServiceCompany:
		return serviceActions(status)
	case domain.RoleHousingCompany:
		return housingActions(status)
	case domain.RoleAdmin:
		return adminActions(status)
	}
	return nil
}

func residentActions(status domain.Status) []TransitionAction {
	switch status {
	case domain.StatusCreated:
		return []TransitionAction{
			destructive(domain.StatusCancelled, "fault.action.withdraw", "fault.confirm.withdraw.title", "fault.confirm.withdraw.body", ModeSecondary),
		}
	case domain.StatusOpen:
		return []TransitionAction{
			destructive(domain.StatusCancelled, "fault.action.close_own", "fault.confirm.close_own.title", "fault.confirm.close_own.body", ModeSecondary),
		}
	case domain.StatusResolved:
		return []TransitionAction{
			action(domain.StatusClosed, "fault.action.confirm_fix", ModePrimary),
		}
	}
	return nil
}

func maintenanceActions(status domain.Status) []TransitionAction {
	switch status {
	case domain.StatusCreated:
		return []TransitionAction{
			action(domain.StatusOpen, "fault.action.acknowledge", ModePrimary),
		}
	case domain.StatusOpen:
		return []TransitionAction{
			action(domain.StatusInProgress, "fault.action.start", ModePrimary),
			destructive(domain.StatusNotPossible, "fault.action.not_possible", "fault.confirm.not_possible.title", "fault.confirm.not_possible.body", ModeSecondary),
		}
	case domain.StatusInProgress:
		return []TransitionAction{
			action(domain.StatusWaiting, "fault.action.wait", ModeSecondary),
		}
	case domain.StatusWaiting:
		return []TransitionAction{
			action(domain.StatusInProgress, "fault.action.resume", ModePrimary),
		}
	case domain.StatusIncomplete:
		return []TransitionAction{
			action(domain.StatusInProgress, "fault.action.rework", ModePrimary),
		}
	}
	return nil
}

func serviceActions(status domain.Status) []TransitionAction {
	switch status {
	case domain.StatusOpen:
		return []TransitionAction{
			action(domain.StatusInProgress, "fault.action.start", ModePrimary),
		}
	case domain.StatusInProgress:
		return []TransitionAction{
			action(domain.StatusWaiting, "fault.action.wait", ModeSecondary),
		}
	case domain.StatusWaiting:
		return []TransitionAction{
			action(domain.StatusInProgress, "fault.action.resume", ModePrimary),
		}
	case domain.StatusIncomplete:
		return []TransitionAction{
			action(domain.StatusInProgress, "fault.action.rework", ModePrimary),
		}
	}
	return nil
}

func housingActions(status domain.Status) []TransitionAction {
	switch status {
	case domain.StatusCreated:
		return []TransitionAction{
			action(domain.StatusOpen, "fault.action.acknowledge", ModePrimary),
			destructive(domain.StatusCancelled, "fault.action.cancel", "fault.confirm.cancel.title", "fault.confirm.cancel.body", ModeSecondary),
		}
	case domain.StatusOpen:
		return []TransitionAction{
			destructive(domain.StatusCancelled, "fault.action.cancel", "fault.confirm.cancel.title", "fault.confirm.cancel.body", ModeSecondary),
		}
	case domain.StatusWaiting:
		return []TransitionAction{
			action(domain.StatusInProgress, "fault.action.resume", ModeSecondary),
		}
	case domain.StatusCompleted:
		return []TransitionAction{
			action(domain.StatusResolved, "fault.action.accept_work", ModePrimary),
			action(domain.StatusIncomplete, "fault.action.reject_work", ModeSecondary),
		}
	case domain.StatusResolved:
		return []TransitionAction{
			action(domain.StatusClosed, "fault.action.close", ModePrimary),
		}
	}
	return nil
}

func adminActions(status domain.Status) []TransitionAction {
	switch status {
	case domain.StatusCreated:
		return []TransitionAction{
			action(domain.StatusOpen, "fault.action.acknowledge", ModePrimary),
			destructive(domain.StatusCancelled, "fault.action.cancel", "fault.confirm.cancel.title", "fault.confirm.cancel.body", ModeSecondary),
		}
	case domain.StatusOpen:
		return []TransitionAction{
			action(domain.StatusInProgress, "fault.action.start", ModePrimary),
			destructive(domain.StatusNotPossible, "fault.action.not_possible", "fault.confirm.not_possible.title", "fault.confirm.not_possible.body", ModeSecondary),
			destructive(domain.StatusCancelled, "fault.action.cancel", "fault.confirm.cancel.title", "fault.confirm.cancel.body", ModeSecondary),
		}
	case domain.StatusWaiting:
		return []TransitionAction{
			action(domain.StatusInProgress, "fault.action.resume", ModeSecondary),
		}
	case domain.StatusCompleted:
		return []TransitionAction{
			action(domain.StatusResolved, "fault.action.accept_work", ModePrimary),
			action(domain.StatusIncomplete, "fault.action.reject_work", ModeSecondary),
		}
	case domain.StatusResolved:
		return []TransitionAction{
			action(domain.StatusClosed, "fault.action.close", ModePrimary),
		}
	}
	return nil
}

// ServiceSupplements returns the extra transitions a service company may
// take while a report is being worked. Only service companies have edges
// out of in_progress/incomplete into completion-like states; keeping the
// rule here keeps it out of the UI layer.
func ServiceSupplements(status domain.Status) []TransitionAction {
	switch status {
	case domain.StatusInProgress, domain.StatusIncomplete:
		return []TransitionAction{
			action(domain.StatusCompleted, "fault.action.complete", ModePrimary),
			action(domain.StatusWaiting, "fault.action.wait", ModeSecondary),
			destructive(domain.StatusCancelled, "fault.action.cancel", "fault.confirm.cancel.title", "fault.confirm.cancel.body", ModeSecondary),
		}
	}
	return nil
}

// Candidates merges the base table with the service company supplements.
// Supplemental entries whose target already appears in the base list are
// dropped, so the result never offers two actions with the same target.
func Candidates(status domain.Status, role domain.Role, isOwner bool) []TransitionAction {
	base := Allowed(status, role, isOwner)
	if role != domain.RoleServiceCompany {
		return base
	}
	seen := make(map[domain.Status]struct{}, len(base))
	for _, a := range base {
		seen[a.Target] = struct{}{}
	}
	merged := base
	for _, a := range ServiceSupplements(status) {
		if _, dup := seen[a.Target]; dup {
			continue
		}
		seen[a.Target] = struct{}{}
		merged = append(merged, a)
	}
	return merged
}

// ValidEdge reports whether some role/ownership combination is offered
// the from→to transition. The server engine uses this as the graph check
// before the per-actor role check.
func ValidEdge(from, to domain.Status) bool {
	for _, role := range domain.Roles {
		for _, owner := range []bool{false, true} {
			for _, a := range Candidates(from, role, owner) {
				if a.Target == to {
					return true
				}
			}
		}
	}
	return false
}
