package entity

import "time"

const (
	AuditIssue      = "issue"
	AuditBulkDelete = "bulk-delete"
)

// AuditEvent records one admin operation.
type AuditEvent struct {
	Id         string            `json:"id" bson:"id"`
	Operation  string            `json:"operation" bson:"operation"`
	Initiator  string            `json:"initiator" bson:"initiator"`
	AccountIds []string          `json:"account_ids" bson:"account_ids"`
	Plan       Plan              `json:"plan,omitempty" bson:"plan,omitempty"`
	Token      string            `json:"token,omitempty" bson:"token,omitempty"`
	Totals     *BulkDeleteTotals `json:"totals,omitempty" bson:"totals,omitempty"`
	Failed     []string          `json:"failed,omitempty" bson:"failed,omitempty"`
	Error      string            `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at" bson:"created_at"`
}
