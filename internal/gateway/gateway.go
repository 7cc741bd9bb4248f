// Package gateway is the client-side contract to the remote authority.
// The authority's internal authorization rules are not modeled here;
// callers only react to the coarse result codes.
package gateway

import (
	"context"
	"fmt"

	"faultline/internal/domain"
)

// Code classifies a failed remote call.
type Code string

const (
	// CodePermissionDenied: the actor's role or ownership does not permit
	// the transition right now.
	CodePermissionDenied Code = "permission_denied"
	// CodeFailedPrecondition: the report's server-side status has diverged
	// from what the client believed.
	CodeFailedPrecondition Code = "failed_precondition"
	// CodeNotFound: report deleted or inaccessible.
	CodeNotFound Code = "not_found"
	// CodeUnavailable: transport or unknown failure; retryable.
	CodeUnavailable Code = "unavailable"
)

// Error is a classified remote-call failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Actor identifies the acting user as the authority sees them.
type Actor struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
}

// Gateway is the narrow read/mutate contract against the remote record
// store. Implementations must return *Error for remote failures so
// callers can classify them.
type Gateway interface {
	FetchReport(ctx context.Context, id string) (domain.FaultReport, error)
	FetchActor(ctx context.Context) (Actor, error)
	MutateStatus(ctx context.Context, id string, target domain.Status) error
}
