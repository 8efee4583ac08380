package audit

// EventType categorizes an audit event.
type EventType string

const (
	EventAccessDenied      EventType = "authz.access_denied"
	EventOrgCreated        EventType = "org.created"
	EventOrgUpdated        EventType = "org.updated"
	EventOrgAdminUpdated   EventType = "org.admin_updated"
	EventMemberAdded       EventType = "org.member_added"
	EventMemberRoleChanged EventType = "org.member_role_changed"
	EventMemberRemoved     EventType = "org.member_removed"
	EventContextSwitched   EventType = "org.context_switched"
)

// Status is the outcome of the audited action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusDenied  Status = "denied"
)

// Event is a single audit record. UserID is the acting user, not the
// target; targets go in Metadata.
type Event struct {
	Type     EventType
	Status   Status
	UserID   string
	OrgID    int64
	Message  string
	Metadata map[string]interface{}
}
