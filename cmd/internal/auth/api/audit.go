package authapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one audit-log record. Identifier is the normalized login
// identifier for failure counting; it is stored alongside the action so
// lockout queries do not need to parse metadata.
type Event struct {
	Action     string
	UserID     *string
	SessionID  *string
	Identifier string
	IP         net.IP
	UserAgent  string
	Meta       map[string]any
	At         time.Time
}

// Auditor records security-relevant auth events and answers the failure
// counts that login throttling is built on.
type Auditor interface {
	Record(ctx context.Context, e Event)
	CountLoginFailuresByIP(ctx context.Context, ip net.IP, since time.Time) (int, error)
	CountLoginFailuresByIdentifier(ctx context.Context, identifier string, since time.Time) (int, error)
}

const actionLoginFailed = "auth.login.failed"

// ---- Postgres ----

// PostgresAuditor persists events in wren.audit_log.
type PostgresAuditor struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewPostgresAuditor(log *slog.Logger, pool *pgxpool.Pool) *PostgresAuditor {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditor{log: log, pool: pool}
}

// Record inserts the event. Failures are logged, never propagated: audit
// writes must not break the request path.
func (a *PostgresAuditor) Record(ctx context.Context, e Event) {
	if a == nil || a.pool == nil {
		return
	}
	action := strings.TrimSpace(e.Action)
	if action == "" {
		return
	}

	var ipVal any
	if e.IP != nil {
		ipVal = e.IP.String()
	}
	var metaVal *string
	if len(e.Meta) > 0 {
		if b, err := json.Marshal(e.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO wren.audit_log (
			user_id, session_id, action, identifier, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	`, e.UserID, e.SessionID, action, trimOrNil(e.Identifier), at, ipVal, trimOrNil(e.UserAgent), metaVal)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func (a *PostgresAuditor) CountLoginFailuresByIP(ctx context.Context, ip net.IP, since time.Time) (int, error) {
	if a == nil || a.pool == nil || ip == nil {
		return 0, nil
	}
	var n int
	err := a.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM wren.audit_log
		WHERE action = $1
		  AND ip = $2
		  AND created_at >= $3
	`, actionLoginFailed, ip.String(), since).Scan(&n)
	return n, err
}

func (a *PostgresAuditor) CountLoginFailuresByIdentifier(ctx context.Context, identifier string, since time.Time) (int, error) {
	if a == nil || a.pool == nil || strings.TrimSpace(identifier) == "" {
		return 0, nil
	}
	var n int
	err := a.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM wren.audit_log
		WHERE action = $1
		  AND identifier = $2
		  AND created_at >= $3
	`, actionLoginFailed, identifier, since).Scan(&n)
	return n, err
}

// ---- Memory ----

// MemoryAuditor keeps events in memory. Used in dev mode without a
// database and by handler tests.
type MemoryAuditor struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryAuditor() *MemoryAuditor {
	return &MemoryAuditor{}
}

func (a *MemoryAuditor) Record(_ context.Context, e Event) {
	if strings.TrimSpace(e.Action) == "" {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *MemoryAuditor) CountLoginFailuresByIP(_ context.Context, ip net.IP, since time.Time) (int, error) {
	if ip == nil {
		return 0, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Action == actionLoginFailed && e.IP != nil && e.IP.Equal(ip) && !e.At.Before(since) {
			n++
		}
	}
	return n, nil
}

func (a *MemoryAuditor) CountLoginFailuresByIdentifier(_ context.Context, identifier string, since time.Time) (int, error) {
	if strings.TrimSpace(identifier) == "" {
		return 0, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Action == actionLoginFailed && e.Identifier == identifier && !e.At.Before(since) {
			n++
		}
	}
	return n, nil
}

// Actions returns the recorded action names in order. Test helper.
func (a *MemoryAuditor) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

// ---- Noop ----

// NoopAuditor discards everything.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, Event) {}
func (NoopAuditor) CountLoginFailuresByIP(context.Context, net.IP, time.Time) (int, error) {
	return 0, nil
}
func (NoopAuditor) CountLoginFailuresByIdentifier(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

var (
	_ Auditor = (*PostgresAuditor)(nil)
	_ Auditor = (*MemoryAuditor)(nil)
	_ Auditor = NoopAuditor{}
)

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
