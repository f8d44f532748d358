package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/rc/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
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
	// connection serializes all writes through Go's connection pool while
	// WAL mode keeps concurrent reads (trend display during a write) safe.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
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

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

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

// --- Cycles ---

// CreateCycle persists one iteration record with its consolidated
// issues, their sources, and the floor-filtered appendix, in a single
// transaction.
func (s *SQLiteStore) CreateCycle(ctx context.Context, c *models.ReviewCycle) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO review_cycles (id, cycle_id, iteration, state, reason, issues_fixed, new_issues, still_present, improvement_rate, net_improvement, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CycleID, c.Iteration, string(c.State), string(c.Reason),
		c.IssuesFixedFromPrevious, c.NewIssuesIntroduced, c.IssuesStillPresent,
		c.ImprovementRate, c.NetImprovement, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create cycle: %w", err)
	}

	if err := insertIssues(ctx, tx, c.ID, c.IssuesFound, false); err != nil {
		return err
	}
	if err := insertIssues(ctx, tx, c.ID, c.FilteredIssues, true); err != nil {
		return err
	}

	return tx.Commit()
}

func insertIssues(ctx context.Context, tx *sql.Tx, cycleRowID string, issues []models.ConsolidatedIssue, filtered bool) error {
	flag := 0
	if filtered {
		flag = 1
	}
	for i := range issues {
		ci := &issues[i]
		conflictHigh, conflictLow := "", ""
		if ci.Conflict != nil {
			conflictHigh = string(ci.Conflict.Highest)
			conflictLow = string(ci.Conflict.Lowest)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO consolidated_issues (cycle_row_id, issue_id, file, line_start, line_end, category, priority, confidence, agreement_ratio, rationale, conflict_highest, conflict_lowest, filtered)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cycleRowID, ci.ID, ci.File, ci.Lines.Start, ci.Lines.End, ci.Category,
			string(ci.Priority), ci.Confidence, ci.AgreementRatio, ci.Rationale,
			conflictHigh, conflictLow, flag,
		)
		if err != nil {
			return fmt.Errorf("create consolidated issue: %w", err)
		}

		for pos, src := range ci.Sources {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO issue_sources (id, cycle_row_id, issue_id, position, reviewer_id, file, line, priority, confidence, category, message, suggestion)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				newULID(), cycleRowID, ci.ID, pos, src.ReviewerID, src.Issue.File, src.Issue.Line,
				string(src.Issue.Priority), src.Issue.Confidence, src.Issue.Category,
				src.Issue.Message, src.Issue.Suggestion,
			)
			if err != nil {
				return fmt.Errorf("create issue source: %w", err)
			}
		}
	}
	return nil
}

// GetCycle loads one iteration record with its issues and sources.
func (s *SQLiteStore) GetCycle(ctx context.Context, id string) (*models.ReviewCycle, error) {
	c, err := s.scanCycle(s.db.QueryRowContext(ctx,
		`SELECT id, cycle_id, iteration, state, reason, issues_fixed, new_issues, still_present, improvement_rate, net_improvement, created_at
		FROM review_cycles WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cycle not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get cycle: %w", err)
	}
	if err := s.loadIssues(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// LatestCycle returns the newest iteration for cycleID, or nil when the
// cycle has no history yet.
func (s *SQLiteStore) LatestCycle(ctx context.Context, cycleID string) (*models.ReviewCycle, error) {
	c, err := s.scanCycle(s.db.QueryRowContext(ctx,
		`SELECT id, cycle_id, iteration, state, reason, issues_fixed, new_issues, still_present, improvement_rate, net_improvement, created_at
		FROM review_cycles WHERE cycle_id = ? ORDER BY iteration DESC LIMIT 1`, cycleID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest cycle: %w", err)
	}
	if err := s.loadIssues(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCycles returns iteration records, newest first, optionally
// filtered to one cycleID. Issues are loaded for each record.
func (s *SQLiteStore) ListCycles(ctx context.Context, cycleID string, limit int) ([]*models.ReviewCycle, error) {
	query := `SELECT id, cycle_id, iteration, state, reason, issues_fixed, new_issues, still_present, improvement_rate, net_improvement, created_at
		FROM review_cycles`
	var args []any
	if cycleID != "" {
		query += " WHERE cycle_id = ?"
		args = append(args, cycleID)
	}
	query += " ORDER BY created_at DESC, iteration DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []*models.ReviewCycle
	for rows.Next() {
		c, err := s.scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range cycles {
		if err := s.loadIssues(ctx, c); err != nil {
			return nil, err
		}
	}
	return cycles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanCycle(row rowScanner) (*models.ReviewCycle, error) {
	c := &models.ReviewCycle{}
	var state, reason string
	err := row.Scan(&c.ID, &c.CycleID, &c.Iteration, &state, &reason,
		&c.IssuesFixedFromPrevious, &c.NewIssuesIntroduced, &c.IssuesStillPresent,
		&c.ImprovementRate, &c.NetImprovement, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.State = models.CycleState(state)
	c.Reason = models.EscalationReason(reason)
	return c, nil
}

func (s *SQLiteStore) loadIssues(ctx context.Context, c *models.ReviewCycle) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT issue_id, file, line_start, line_end, category, priority, confidence, agreement_ratio, rationale, conflict_highest, conflict_lowest, filtered
		FROM consolidated_issues WHERE cycle_row_id = ? ORDER BY file, line_start, issue_id`, c.ID,
	)
	if err != nil {
		return fmt.Errorf("load issues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ci models.ConsolidatedIssue
		var priority, conflictHigh, conflictLow string
		var filtered int
		err := rows.Scan(&ci.ID, &ci.File, &ci.Lines.Start, &ci.Lines.End, &ci.Category,
			&priority, &ci.Confidence, &ci.AgreementRatio, &ci.Rationale,
			&conflictHigh, &conflictLow, &filtered)
		if err != nil {
			return fmt.Errorf("scan issue: %w", err)
		}
		ci.Priority = models.Priority(priority)
		if conflictHigh != "" {
			ci.Conflict = &models.PriorityConflict{
				Highest: models.Priority(conflictHigh),
				Lowest:  models.Priority(conflictLow),
			}
		}
		if filtered == 1 {
			c.FilteredIssues = append(c.FilteredIssues, ci)
		} else {
			c.IssuesFound = append(c.IssuesFound, ci)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if err := s.loadSources(ctx, c.ID, c.IssuesFound); err != nil {
		return err
	}
	return s.loadSources(ctx, c.ID, c.FilteredIssues)
}

func (s *SQLiteStore) loadSources(ctx context.Context, cycleRowID string, issues []models.ConsolidatedIssue) error {
	for i := range issues {
		ci := &issues[i]
		rows, err := s.db.QueryContext(ctx,
			`SELECT reviewer_id, file, line, priority, confidence, category, message, suggestion
			FROM issue_sources WHERE cycle_row_id = ? AND issue_id = ? ORDER BY position`, cycleRowID, ci.ID,
		)
		if err != nil {
			return fmt.Errorf("load sources: %w", err)
		}
		for rows.Next() {
			var src models.Source
			var priority string
			err := rows.Scan(&src.ReviewerID, &src.Issue.File, &src.Issue.Line, &priority,
				&src.Issue.Confidence, &src.Issue.Category, &src.Issue.Message, &src.Issue.Suggestion)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan source: %w", err)
			}
			src.Issue.Priority = models.Priority(priority)
			src.Issue.ReviewerID = src.ReviewerID
			ci.Sources = append(ci.Sources, src)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

// --- Reviewer runs ---

// CreateReviewerRuns logs each reviewer's outcome for one iteration.
func (s *SQLiteStore) CreateReviewerRuns(ctx context.Context, runs []*models.ReviewerRun) error {
	for _, r := range runs {
		if r.ID == "" {
			r.ID = newULID()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO reviewer_runs (id, cycle_row_id, reviewer_id, status, issue_count, error, elapsed_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.CycleRowID, r.ReviewerID, string(r.Status), r.IssueCount, r.Error, r.ElapsedMs, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create reviewer run: %w", err)
		}
	}
	return nil
}

// ListReviewerRuns returns the reviewer outcome log for one iteration.
func (s *SQLiteStore) ListReviewerRuns(ctx context.Context, cycleRowID string) ([]*models.ReviewerRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cycle_row_id, reviewer_id, status, issue_count, error, elapsed_ms, created_at
		FROM reviewer_runs WHERE cycle_row_id = ? ORDER BY reviewer_id`, cycleRowID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviewer runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ReviewerRun
	for rows.Next() {
		r := &models.ReviewerRun{}
		var status string
		err := rows.Scan(&r.ID, &r.CycleRowID, &r.ReviewerID, &status, &r.IssueCount, &r.Error, &r.ElapsedMs, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan reviewer run: %w", err)
		}
		r.Status = models.OutcomeStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
