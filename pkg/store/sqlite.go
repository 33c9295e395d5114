package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/intervox/intervox/pkg/errorsx"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) the SQLite database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode so transcript writes do not block reads mid-interview.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS interviews (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		duration INTEGER NOT NULL,
		difficulty TEXT NOT NULL,
		seniority TEXT NOT NULL,
		concept TEXT NOT NULL DEFAULT '',
		silence_time REAL NOT NULL,
		status TEXT NOT NULL,
		start_time INTEGER,
		end_time INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interviews_user ON interviews(user_id, created_at);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		interview_id TEXT NOT NULL REFERENCES interviews(id),
		question TEXT NOT NULL,
		user_answer TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_questions_interview ON questions(interview_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		interview_id TEXT NOT NULL UNIQUE REFERENCES interviews(id),
		rating INTEGER NOT NULL,
		english_score INTEGER NOT NULL,
		technical_score INTEGER NOT NULL,
		communication_score INTEGER NOT NULL,
		feedback_text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateInterview inserts a new interview, assigning its ID.
func (s *SQLiteStore) CreateInterview(ctx context.Context, iv *Interview) error {
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	now := time.Now()
	iv.CreatedAt = now
	iv.UpdatedAt = now
	if iv.Status == "" {
		iv.Status = StatusCreated
	}

	query := `
	INSERT INTO interviews (id, user_id, topic, duration, difficulty, seniority,
		concept, silence_time, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		iv.ID, iv.UserID, iv.Topic, iv.Duration, iv.Difficulty, iv.Seniority,
		iv.Concept, iv.SilenceTime, string(iv.Status),
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("insert interview: %w", err), errorsx.ReasonStoreWrite)
	}
	return nil
}

const interviewColumns = `id, user_id, topic, duration, difficulty, seniority,
	concept, silence_time, status, start_time, end_time, created_at, updated_at`

func scanInterview(row interface{ Scan(...any) error }) (*Interview, error) {
	var iv Interview
	var status string
	var startTime, endTime sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&iv.ID, &iv.UserID, &iv.Topic, &iv.Duration, &iv.Difficulty,
		&iv.Seniority, &iv.Concept, &iv.SilenceTime, &status,
		&startTime, &endTime, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	iv.Status = InterviewStatus(status)
	iv.CreatedAt = time.Unix(createdAt, 0)
	iv.UpdatedAt = time.Unix(updatedAt, 0)
	if startTime.Valid {
		ts := time.Unix(startTime.Int64, 0)
		iv.StartTime = &ts
	}
	if endTime.Valid {
		ts := time.Unix(endTime.Int64, 0)
		iv.EndTime = &ts
	}
	return &iv, nil
}

// GetInterview retrieves an interview by ID. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetInterview(ctx context.Context, id string) (*Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE id = ?`
	iv, err := scanInterview(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("scan interview: %w", err), errorsx.ReasonStoreRead)
	}
	return iv, nil
}

// ListInterviews retrieves all interviews for a user, newest first.
func (s *SQLiteStore) ListInterviews(ctx context.Context, userID string) ([]*Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("query interviews: %w", err), errorsx.ReasonStoreRead)
	}
	defer rows.Close()

	var out []*Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, errorsx.Wrap(fmt.Errorf("scan interview row: %w", err), errorsx.ReasonStoreRead)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("iterate interviews: %w", err), errorsx.ReasonStoreRead)
	}
	return out, nil
}

// MarkStarted records the interview's start on first connect. The stored
// start time wins over now, so the time budget is anchored once.
func (s *SQLiteStore) MarkStarted(ctx context.Context, id string, now time.Time) (time.Time, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE interviews SET start_time = ?, status = ?, updated_at = ?
		WHERE id = ? AND start_time IS NULL`,
		now.Unix(), string(StatusInProgress), now.Unix(), id,
	)
	if err != nil {
		return time.Time{}, errorsx.Wrap(fmt.Errorf("mark started: %w", err), errorsx.ReasonStoreWrite)
	}

	var startTime sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT start_time FROM interviews WHERE id = ?`, id).Scan(&startTime)
	if err == sql.ErrNoRows {
		return time.Time{}, errorsx.Wrap(fmt.Errorf("interview %s not found", id), errorsx.ReasonStoreRead)
	}
	if err != nil {
		return time.Time{}, errorsx.Wrap(fmt.Errorf("read start time: %w", err), errorsx.ReasonStoreRead)
	}
	if !startTime.Valid {
		return time.Time{}, errorsx.Wrap(fmt.Errorf("interview %s has no start time", id), errorsx.ReasonStoreRead)
	}
	return time.Unix(startTime.Int64, 0), nil
}

// MarkConcluded moves the interview to COMPLETED and stamps its end.
// Idempotent: a concluded interview keeps its original end time.
func (s *SQLiteStore) MarkConcluded(ctx context.Context, id string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		UPDATE interviews SET status = ?, end_time = ?, updated_at = ?
		WHERE id = ? AND status != ?`,
		string(StatusCompleted), now, now, id, string(StatusCompleted),
	)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("mark concluded: %w", err), errorsx.ReasonStoreWrite)
	}
	return nil
}

// AppendQuestion records a new agent question.
func (s *SQLiteStore) AppendQuestion(ctx context.Context, interviewID, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (id, interview_id, question, created_at)
		VALUES (?, ?, ?, ?)`,
		uuid.NewString(), interviewID, text, time.Now().Unix(),
	)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("insert question: %w", err), errorsx.ReasonStoreWrite)
	}
	return nil
}

// RecordAnswer sets the candidate's answer on the latest question.
func (s *SQLiteStore) RecordAnswer(ctx context.Context, interviewID, text string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE questions SET user_answer = ?
		WHERE rowid = (SELECT MAX(rowid) FROM questions WHERE interview_id = ?)`,
		text, interviewID,
	)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("record answer: %w", err), errorsx.ReasonStoreWrite)
	}
	return nil
}

// AppendAnswer appends trailing speech to the latest question's answer.
func (s *SQLiteStore) AppendAnswer(ctx context.Context, interviewID, text string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE questions SET user_answer = CASE
			WHEN user_answer = '' THEN ?
			ELSE user_answer || ' ' || ?
		END
		WHERE rowid = (SELECT MAX(rowid) FROM questions WHERE interview_id = ?)`,
		text, text, interviewID,
	)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("append answer: %w", err), errorsx.ReasonStoreWrite)
	}
	return nil
}

// ListQuestions retrieves the interview's transcript in asked order.
func (s *SQLiteStore) ListQuestions(ctx context.Context, interviewID string) ([]*Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, interview_id, question, user_answer, created_at
		FROM questions WHERE interview_id = ? ORDER BY rowid`,
		interviewID,
	)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("query questions: %w", err), errorsx.ReasonStoreRead)
	}
	defer rows.Close()

	var out []*Question
	for rows.Next() {
		var q Question
		var createdAt int64
		if err := rows.Scan(&q.ID, &q.InterviewID, &q.Question, &q.UserAnswer, &createdAt); err != nil {
			return nil, errorsx.Wrap(fmt.Errorf("scan question row: %w", err), errorsx.ReasonStoreRead)
		}
		q.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("iterate questions: %w", err), errorsx.ReasonStoreRead)
	}
	return out, nil
}

// SaveFeedback inserts the feedback record. Feedback is write-once per
// interview; a second save returns ErrFeedbackExists.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb *Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	fb.CreatedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, interview_id, rating, english_score,
			technical_score, communication_score, feedback_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(interview_id) DO NOTHING`,
		fb.ID, fb.InterviewID, fb.Rating, fb.EnglishScore,
		fb.TechnicalScore, fb.CommunicationScore, fb.FeedbackText,
		fb.CreatedAt.Unix(),
	)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("insert feedback: %w", err), errorsx.ReasonStoreWrite)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("feedback rows affected: %w", err), errorsx.ReasonStoreWrite)
	}
	if rows == 0 {
		return ErrFeedbackExists
	}
	return nil
}

// GetFeedback retrieves feedback by interview ID. Returns (nil, nil) when
// none exists.
func (s *SQLiteStore) GetFeedback(ctx context.Context, interviewID string) (*Feedback, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, interview_id, rating, english_score, technical_score,
			communication_score, feedback_text, created_at
		FROM feedback WHERE interview_id = ?`,
		interviewID,
	)

	var fb Feedback
	var createdAt int64
	err := row.Scan(&fb.ID, &fb.InterviewID, &fb.Rating, &fb.EnglishScore,
		&fb.TechnicalScore, &fb.CommunicationScore, &fb.FeedbackText, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("scan feedback: %w", err), errorsx.ReasonStoreRead)
	}
	fb.CreatedAt = time.Unix(createdAt, 0)
	return &fb, nil
}

var _ Store = (*SQLiteStore)(nil)
