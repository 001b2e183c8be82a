package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-attempt/internal/model"
)

var sessionEventColumns = []string{"attempt_id", "student_id", "kind", "detail", "recorded_at"}

// SessionEventRepository handles session_events data access.
type SessionEventRepository struct {
	pool *pgxpool.Pool
}

// NewSessionEventRepository creates a new SessionEventRepository.
func NewSessionEventRepository(pool *pgxpool.Pool) *SessionEventRepository {
	return &SessionEventRepository{pool: pool}
}

// CopyMany bulk inserts events with COPY.
func (r *SessionEventRepository) CopyMany(ctx context.Context, events []model.SessionEvent) (int64, error) {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.AttemptID, e.StudentID, string(e.Kind), e.Detail, e.RecordedAt})
	}
	return r.pool.CopyFrom(ctx, pgx.Identifier{"session_events"}, sessionEventColumns, pgx.CopyFromRows(rows))
}

// Insert stores a single event.
func (r *SessionEventRepository) Insert(ctx context.Context, e model.SessionEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_events (attempt_id, student_id, kind, detail, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.AttemptID, e.StudentID, string(e.Kind), e.Detail, e.RecordedAt)
	return err
}

// ListByAttempt returns a student's events of an attempt, oldest first.
func (r *SessionEventRepository) ListByAttempt(ctx context.Context, attemptID, studentID int64, limit int) ([]model.SessionEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, student_id, kind, detail, recorded_at
		 FROM session_events
		 WHERE attempt_id = $1 AND student_id = $2
		 ORDER BY recorded_at, id
		 LIMIT $3`, attemptID, studentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.SessionEvent
	for rows.Next() {
		var (
			e    model.SessionEvent
			kind string
		)
		if err := rows.Scan(&e.AttemptID, &e.StudentID, &kind, &e.Detail, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Kind = model.SessionEventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}
