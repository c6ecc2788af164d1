// Package pending queues write requests that could not reach the origin
// and replays them once connectivity returns.
package pending

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/edgegate/edgegate/internal/observability"
)

// Submission is a deferred write request.
type Submission struct {
	// ID uniquely identifies the submission.
	ID string `json:"id"`

	// Method is the HTTP method of the original request.
	Method string `json:"method"`

	// URL is the absolute origin URL the request was addressed to.
	URL string `json:"url"`

	// Headers are the original request headers.
	Headers http.Header `json:"headers,omitempty"`

	// Body is the original request body.
	Body []byte `json:"body,omitempty"`

	// Attempts counts replay attempts so far.
	Attempts int `json:"attempts"`

	// CreatedAt is when the submission was queued.
	CreatedAt time.Time `json:"createdAt"`
}

const schema = `
CREATE TABLE IF NOT EXISTS pending_submissions (
	id         TEXT PRIMARY KEY,
	method     TEXT NOT NULL,
	url        TEXT NOT NULL,
	headers    TEXT NOT NULL DEFAULT '{}',
	body       BLOB,
	attempts   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_created_at ON pending_submissions(created_at);
`

// Store persists pending submissions in SQLite so queued writes survive
// process restarts.
type Store struct {
	db     *sql.DB
	logger observability.Logger
}

// OpenStore opens (and if needed initializes) the submission database at
// the given path.
func OpenStore(path string, logger observability.Logger) (*Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open pending database: %w", err)
	}

	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize pending schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Add queues a submission and returns its generated ID.
func (s *Store) Add(ctx context.Context, sub Submission) (string, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	headers, err := json.Marshal(sub.Headers)
	if err != nil {
		return "", fmt.Errorf("encode headers: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_submissions (id, method, url, headers, body, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Method, sub.URL, string(headers), sub.Body, sub.Attempts, sub.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert submission: %w", err)
	}

	GetMetrics().queuedTotal.Inc()
	s.logger.Info("queued pending submission",
		observability.String("id", sub.ID),
		observability.String("method", sub.Method),
		observability.String("url", sub.URL),
	)
	return sub.ID, nil
}

// List returns all pending submissions in queue order.
func (s *Store) List(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, method, url, headers, body, attempts, created_at
		 FROM pending_submissions ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []Submission
	for rows.Next() {
		var sub Submission
		var headers string
		if err := rows.Scan(&sub.ID, &sub.Method, &sub.URL, &headers, &sub.Body, &sub.Attempts, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if err := json.Unmarshal([]byte(headers), &sub.Headers); err != nil {
			return nil, fmt.Errorf("decode headers for %s: %w", sub.ID, err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Remove deletes a submission by ID. Removing an absent ID is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_submissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove submission %s: %w", id, err)
	}
	return nil
}

// MarkAttempt increments the attempt counter of a submission.
func (s *Store) MarkAttempt(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_submissions SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark attempt for %s: %w", id, err)
	}
	return nil
}

// Count returns the number of queued submissions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_submissions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
