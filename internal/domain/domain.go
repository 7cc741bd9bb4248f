package domain

// Status is a fault report lifecycle state. The set is closed; clients
// never invent states and never advance one without the authority's
// confirmation.
type Status string

const (
	StatusCreated     Status = "created"
	StatusOpen        Status = "open"
	StatusInProgress  Status = "in_progress"
	StatusWaiting     Status = "waiting"
	StatusIncomplete  Status = "incomplete"
	StatusCompleted   Status = "completed"
	StatusResolved    Status = "resolved"
	StatusClosed      Status = "closed"
	StatusCancelled   Status = "cancelled"
	StatusNotPossible Status = "not_possible"
)

// Statuses lists every lifecycle state in workflow order.
var Statuses = []Status{
	StatusCreated, StatusOpen, StatusInProgress, StatusWaiting,
	StatusIncomplete, StatusCompleted, StatusResolved,
	StatusClosed, StatusCancelled, StatusNotPossible,
}

// Terminal reports whether the workflow has no outgoing edges from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusNotPossible:
		return true
	}
	return false
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Role determines which edges of the transition graph an actor may traverse.
type Role string

const (
	RoleResident       Role = "resident"
	RoleServiceCompany Role = "service_company"
	RoleMaintenance    Role = "maintenance"
	RoleHousingCompany Role = "housing_company"
	RoleAdmin          Role = "admin"
)

var Roles = []Role{
	RoleResident, RoleServiceCompany, RoleMaintenance,
	RoleHousingCompany, RoleAdmin,
}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

type FaultReport struct {
	ID          string   `json:"id"`
	SiteID      string   `json:"site_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Urgency     string   `json:"urgency,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	Status      Status   `json:"status"`
	CreatedBy   string   `json:"created_by"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Site struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	ReportID  string `json:"report_id"`
	Body      string `json:"body"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Actor struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SiteID     string `json:"site_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
