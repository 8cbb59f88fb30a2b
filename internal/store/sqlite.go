package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/remedyhq/remedy/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Structured session fields (overview, plan, fixes, PR draft) are stored
// as JSON columns since readers only ever consume whole snapshots.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors when multiple session
	// workflows update their records concurrently.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// marshalJSON serializes v to a nullable JSON column value. Nil pointers
// and empty slices store as NULL so field presence survives round-trips.
func marshalJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case *models.SystemOverview:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *models.FixPlan:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *models.PRDraft:
		if t == nil {
			return sql.NullString{}, nil
		}
	case []models.Fix:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalJSON(col sql.NullString, v any) error {
	if !col.Valid {
		return nil
	}
	return json.Unmarshal([]byte(col.String), v)
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = newULID()
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	overview, err := marshalJSON(sess.Overview)
	if err != nil {
		return fmt.Errorf("marshal overview: %w", err)
	}
	plan, err := marshalJSON(sess.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	fixes, err := marshalJSON(sess.Fixes)
	if err != nil {
		return fmt.Errorf("marshal fixes: %w", err)
	}
	prDraft, err := marshalJSON(sess.PRDraft)
	if err != nil {
		return fmt.Errorf("marshal pr draft: %w", err)
	}

	var gatewayUp sql.NullInt64
	if sess.GatewayUp != nil {
		gatewayUp = sql.NullInt64{Int64: boolToInt64(*sess.GatewayUp), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, issue_ref, status, progress, current_step, gateway_up, overview, plan, fixes, pr_draft, error, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.IssueRef, sess.Status, sess.Progress, sess.CurrentStep,
		gatewayUp, overview, plan, fixes, prDraft, sess.Error,
		sess.CreatedAt, sess.UpdatedAt, sess.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, issue_ref, status, progress, current_step, gateway_up, overview, plan, fixes, pr_draft, error, created_at, updated_at, completed_at
		FROM sessions WHERE id = ?`, id,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	query := `SELECT id, issue_ref, status, progress, current_step, gateway_up, overview, plan, fixes, pr_draft, error, created_at, updated_at, completed_at
		FROM sessions ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *models.Session) error {
	sess.UpdatedAt = time.Now().UTC()

	overview, err := marshalJSON(sess.Overview)
	if err != nil {
		return fmt.Errorf("marshal overview: %w", err)
	}
	plan, err := marshalJSON(sess.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	fixes, err := marshalJSON(sess.Fixes)
	if err != nil {
		return fmt.Errorf("marshal fixes: %w", err)
	}
	prDraft, err := marshalJSON(sess.PRDraft)
	if err != nil {
		return fmt.Errorf("marshal pr draft: %w", err)
	}

	var gatewayUp sql.NullInt64
	if sess.GatewayUp != nil {
		gatewayUp = sql.NullInt64{Int64: boolToInt64(*sess.GatewayUp), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET issue_ref = ?, status = ?, progress = ?, current_step = ?, gateway_up = ?, overview = ?, plan = ?, fixes = ?, pr_draft = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		sess.IssueRef, sess.Status, sess.Progress, sess.CurrentStep,
		gatewayUp, overview, plan, fixes, prDraft, sess.Error,
		sess.UpdatedAt, sess.CompletedAt, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sess.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanSession.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	sess := &models.Session{}
	var (
		gatewayUp   sql.NullInt64
		overview    sql.NullString
		plan        sql.NullString
		fixes       sql.NullString
		prDraft     sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.IssueRef, &sess.Status, &sess.Progress,
		&sess.CurrentStep, &gatewayUp, &overview, &plan, &fixes, &prDraft,
		&sess.Error, &sess.CreatedAt, &sess.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if gatewayUp.Valid {
		v := gatewayUp.Int64 != 0
		sess.GatewayUp = &v
	}
	if overview.Valid {
		sess.Overview = &models.SystemOverview{}
		if err := unmarshalJSON(overview, sess.Overview); err != nil {
			return nil, fmt.Errorf("unmarshal overview: %w", err)
		}
	}
	if plan.Valid {
		sess.Plan = &models.FixPlan{}
		if err := unmarshalJSON(plan, sess.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
	}
	if fixes.Valid {
		if err := unmarshalJSON(fixes, &sess.Fixes); err != nil {
			return nil, fmt.Errorf("unmarshal fixes: %w", err)
		}
	}
	if prDraft.Valid {
		sess.PRDraft = &models.PRDraft{}
		if err := unmarshalJSON(prDraft, sess.PRDraft); err != nil {
			return nil, fmt.Errorf("unmarshal pr draft: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return sess, nil
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
