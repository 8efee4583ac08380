package audit

import (
	"context"

	"github.com/docuvault/docuvault/pkg/observability"
)

// Auditor writes audit events through the structured logger.
type Auditor struct {
	logger *observability.Logger
}

// NewAuditor creates an auditor on top of the given logger.
func NewAuditor(logger *observability.Logger) *Auditor {
	return &Auditor{logger: logger}
}

// Record emits one audit event. The request ID is taken from ctx when
// present so audit records correlate with request logs.
func (a *Auditor) Record(ctx context.Context, event Event) {
	if a == nil || a.logger == nil {
		return
	}
	if event.Status == "" {
		event.Status = StatusSuccess
	}

	fields := map[string]interface{}{
		"audit":  string(event.Type),
		"status": string(event.Status),
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.OrgID != 0 {
		fields["org_id"] = event.OrgID
	}
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	message := event.Message
	if message == "" {
		message = string(event.Type)
	}
	a.logger.WithFields(fields).Info(message)
}

// AccessDenied records a failed authorization check.
func (a *Auditor) AccessDenied(ctx context.Context, userID string, orgID int64, required []string) {
	a.Record(ctx, Event{
		Type:     EventAccessDenied,
		Status:   StatusDenied,
		UserID:   userID,
		OrgID:    orgID,
		Metadata: map[string]interface{}{"required": required},
	})
}
