// Package audit emits structured audit events for security-relevant
// actions: authorization denials, organization lifecycle changes and
// membership mutations.
//
// Events go through the structured logger under the "audit" field, so
// a single log pipeline carries both operational and audit records
// and the audit trail can be filtered out downstream.
package audit
