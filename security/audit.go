// Package security provides the audit recorder and per-identifier rate
// limiting used by the credential lifecycle core.
package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Audit event types. Every credential-lifecycle operation records exactly
// one of these per attempt.
const (
	EventLogin     = "login"
	EventAuthorize = "authorize"
	EventToken     = "token"
	EventRevoke    = "revoke"
	EventLogout    = "logout"
)

// Audit outcomes.
const (
	ResultSuccess = "success"
	ResultFail    = "fail"
)

// Entry is a single audit record. The human-readable ErrorMsg is for the
// audit trail only; callers never expose it to the token-endpoint caller
// beyond the standardized OAuth error code.
type Entry struct {
	Type      string
	UserID    string
	ClientID  string
	IP        string
	Result    string
	ErrorMsg  string
	Timestamp time.Time
}

// Recorder is the append-only audit sink. Recording is fire-and-forget:
// implementations must never fail the primary operation, so Record
// returns nothing.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Auditor is the slog-backed Recorder. User IDs are hashed before logging
// to keep PII out of log aggregation.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

var _ Recorder = (*Auditor)(nil)

// NewAuditor creates a new audit recorder.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Record logs an audit entry with hashed PII.
func (a *Auditor) Record(ctx context.Context, e Entry) {
	if !a.enabled {
		return
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	a.logger.InfoContext(ctx, "audit",
		"type", e.Type,
		"user_id_hash", hashForLogging(e.UserID),
		"client_id", e.ClientID,
		"ip", e.IP,
		"result", e.Result,
		"error_msg", e.ErrorMsg,
		"timestamp", e.Timestamp,
	)
}

// Success records a successful operation.
func Success(ctx context.Context, r Recorder, eventType, userID, clientID, ip string) {
	if r == nil {
		return
	}
	r.Record(ctx, Entry{
		Type:     eventType,
		UserID:   userID,
		ClientID: clientID,
		IP:       ip,
		Result:   ResultSuccess,
	})
}

// Failure records a failed operation with the reason kept for the audit
// trail.
func Failure(ctx context.Context, r Recorder, eventType, userID, clientID, ip, reason string) {
	if r == nil {
		return
	}
	r.Record(ctx, Entry{
		Type:     eventType,
		UserID:   userID,
		ClientID: clientID,
		IP:       ip,
		Result:   ResultFail,
		ErrorMsg: reason,
	})
}

// hashForLogging creates a short SHA256 digest of sensitive data for logging.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
