package observability

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const auditEventVersion = 1

// AuditInput is what a handler knows about an auth event.
type AuditInput struct {
	EventName   string
	ActorUserID string
	ActorEmail  string
	TargetType  string
	TargetID    string
	Action      string
	Outcome     string
	Reason      string
}

// AuditEvent is the versioned record written to the log stream.
type AuditEvent struct {
	EventVersion int    `json:"event_version"`
	EventName    string `json:"event_name"`
	ActorUserID  string `json:"actor_user_id"`
	ActorEmail   string `json:"actor_email,omitempty"`
	ActorIP      string `json:"actor_ip"`
	TargetType   string `json:"target_type"`
	TargetID     string `json:"target_id"`
	Action       string `json:"action"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason"`
	RequestID    string `json:"request_id"`
	TS           string `json:"ts"`
}

func BuildAuditEvent(r *http.Request, in AuditInput) AuditEvent {
	actor := in.ActorUserID
	if actor == "" {
		actor = "anonymous"
	}
	target := in.TargetID
	if target == "" {
		target = "unknown"
	}
	return AuditEvent{
		EventVersion: auditEventVersion,
		EventName:    in.EventName,
		ActorUserID:  actor,
		ActorEmail:   in.ActorEmail,
		ActorIP:      clientIP(r),
		TargetType:   in.TargetType,
		TargetID:     target,
		Action:       in.Action,
		Outcome:      in.Outcome,
		Reason:       in.Reason,
		RequestID:    r.Header.Get("X-Request-Id"),
		TS:           time.Now().UTC().Format(time.RFC3339),
	}
}

func (e AuditEvent) Validate() error {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("event_name", e.EventName)
	check("actor_user_id", e.ActorUserID)
	check("actor_ip", e.ActorIP)
	check("target_type", e.TargetType)
	check("target_id", e.TargetID)
	check("action", e.Action)
	check("outcome", e.Outcome)
	check("reason", e.Reason)
	check("ts", e.TS)
	if e.EventVersion != auditEventVersion {
		missing = append(missing, "event_version")
	}
	if len(missing) > 0 {
		return errors.New("audit event missing fields: " + strings.Join(missing, ", "))
	}
	return nil
}

// Audit writes the event at info level. Invalid events are still written,
// flagged with audit_invalid, so nothing is silently dropped.
func Audit(r *http.Request, in AuditInput) {
	ev := BuildAuditEvent(r, in)
	args := []any{
		"event_version", ev.EventVersion,
		"event_name", ev.EventName,
		"actor_user_id", ev.ActorUserID,
		"actor_ip", ev.ActorIP,
		"target_type", ev.TargetType,
		"target_id", ev.TargetID,
		"action", ev.Action,
		"outcome", ev.Outcome,
		"reason", ev.Reason,
		"request_id", ev.RequestID,
		"ts", ev.TS,
	}
	if ev.ActorEmail != "" {
		args = append(args, "actor_email", ev.ActorEmail)
	}
	if err := ev.Validate(); err != nil {
		args = append(args, "audit_invalid", err.Error())
	}
	slog.InfoContext(r.Context(), "audit", args...)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
