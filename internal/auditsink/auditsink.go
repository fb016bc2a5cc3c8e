// Package auditsink is an optional, best-effort durable mirror of the
// denial/governance-change log spec §7 mandates. It subscribes to
// checkengine's AuditFunc callback and writes rows to Postgres; a dropped or
// slow write never blocks or fails a Check/Authorize call, preserving the
// core's synchronous, I/O-free guarantee (spec §5). Grounded on the
// teacher's policy_storage.go: database/sql + lib/pq, schema-init-then-insert.
package auditsink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/overlaytrust/timeline/internal/checkengine"
	"github.com/overlaytrust/timeline/internal/timelinelog"
)

// Sink writes audit events to Postgres on a background goroutine.
type Sink struct {
	db  *sql.DB
	log *timelinelog.Logger
}

// Open connects to dsn and ensures the audit_events table exists.
func Open(dsn string, log *timelinelog.Logger) (*Sink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditsink: connect: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("auditsink: ping: %w", err)
	}

	s := &Sink{db: db, log: log}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("auditsink: init schema: %w", err)
	}
	return s, nil
}

func (s *Sink) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS audit_events (
		id SERIAL PRIMARY KEY,
		kind VARCHAR(50) NOT NULL,
		member_id BIGINT NOT NULL,
		message_name VARCHAR(255) NOT NULL,
		global_time BIGINT NOT NULL,
		reason VARCHAR(255),
		recorded_at TIMESTAMP NOT NULL
	)`)
	return err
}

// Record inserts one audit event, fire-and-forget: failures are logged, not
// returned, since nothing in the core's call path is waiting on this.
func (s *Sink) Record(event checkengine.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (kind, member_id, message_name, global_time, reason, recorded_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.Kind, event.Member.DatabaseID, event.MessageName, event.GlobalTime, event.Reason, time.Now())
	if err != nil && s.log != nil {
		s.log.Warnf("auditsink: failed to record event: %v", err)
	}
}

// AsAuditFunc adapts the sink into a checkengine.AuditFunc, dispatching each
// write on its own goroutine so a slow database never delays the caller.
func (s *Sink) AsAuditFunc() checkengine.AuditFunc {
	return func(event checkengine.AuditEvent) {
		go s.Record(event)
	}
}

// Close releases the underlying database connection.
func (s *Sink) Close() error {
	return s.db.Close()
}
