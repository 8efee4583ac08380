package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/pkg/observability"
)

func newCaptureAuditor() (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewAuditor(observability.NewLogger(observability.InfoLevel, &buf)), &buf
}

func TestRecord(t *testing.T) {
	auditor, buf := newCaptureAuditor()

	auditor.Record(context.Background(), Event{
		Type:     EventMemberAdded,
		UserID:   "b9f3a7d2-1c44-4df0-9a6b-2f1a8c3d5e70",
		OrgID:    42,
		Metadata: map[string]interface{}{"member_user_id": "0d1e2f3a-4b5c-6d7e-8f90-a1b2c3d4e5f6"},
	})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "org.member_added", record["audit"])
	assert.Equal(t, "success", record["status"])
	assert.Equal(t, float64(42), record["org_id"])
	assert.Equal(t, "0d1e2f3a-4b5c-6d7e-8f90-a1b2c3d4e5f6", record["member_user_id"])
}

func TestRecordIncludesRequestID(t *testing.T) {
	auditor, buf := newCaptureAuditor()

	ctx := observability.WithRequestID(context.Background(), "req-123")
	auditor.Record(ctx, Event{Type: EventOrgCreated, OrgID: 42})

	assert.Contains(t, buf.String(), "req-123")
}

func TestAccessDenied(t *testing.T) {
	auditor, buf := newCaptureAuditor()

	auditor.AccessDenied(context.Background(), "b9f3a7d2-1c44-4df0-9a6b-2f1a8c3d5e70", 42, []string{"org.manage"})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "authz.access_denied", record["audit"])
	assert.Equal(t, "denied", record["status"])
	assert.Contains(t, buf.String(), "org.manage")
}

func TestNilAuditorIsSafe(t *testing.T) {
	var auditor *Auditor
	assert.NotPanics(t, func() {
		auditor.Record(context.Background(), Event{Type: EventOrgCreated})
	})
}
