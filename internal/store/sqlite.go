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
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hackdesk/triage/internal/models"

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
	// connection serializes all DB access through Go's connection pool, so
	// concurrent job workers and HTTP requests don't hit "database is locked".
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

	// Enable foreign keys
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

// --- Issues ---

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = newULID()
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (id, program_id, title, description, status, priority, source, thread_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.ProgramID, issue.Title, issue.Description,
		string(issue.Status), string(issue.Priority), issue.Source,
		issue.ThreadKey, issue.CreatedAt, issue.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("thread key %q: %w", issue.ThreadKey, ErrThreadExists)
		}
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

const issueColumns = `id, program_id, title, description, status, priority, source, thread_key, created_at, updated_at, deleted_at`

func scanIssue(row interface{ Scan(...any) error }) (*models.Issue, error) {
	issue := &models.Issue{}
	var status, priority string
	var deletedAt sql.NullTime

	err := row.Scan(&issue.ID, &issue.ProgramID, &issue.Title, &issue.Description,
		&status, &priority, &issue.Source, &issue.ThreadKey,
		&issue.CreatedAt, &issue.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	issue.Status = models.IssueStatus(status)
	issue.Priority = models.IssuePriority(priority)
	if deletedAt.Valid {
		issue.DeletedAt = &deletedAt.Time
	}
	return issue, nil
}

func (s *SQLiteStore) getIssueWhere(ctx context.Context, where string, args ...any) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE deleted_at IS NULL AND `+where, args...)
	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	return s.getIssueWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetIssueByThreadKey(ctx context.Context, key string) (*models.Issue, error) {
	return s.getIssueWhere(ctx, "thread_key = ?", key)
}

// GetIssueByThreadSuffix matches issues whose composite key ends in the
// given bare thread timestamp, for records looked up without channel info.
func (s *SQLiteStore) GetIssueByThreadSuffix(ctx context.Context, thread string) (*models.Issue, error) {
	return s.getIssueWhere(ctx, "thread_key LIKE ?", "%:"+thread)
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE deleted_at IS NULL`
	var args []any

	if filter.ProgramID != "" {
		query += " AND program_id = ?"
		args = append(args, filter.ProgramID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		query += " AND priority = ?"
		args = append(args, string(filter.Priority))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *SQLiteStore) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	issue.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE issues SET program_id=?, title=?, description=?, status=?, priority=?, source=?, thread_key=?, updated_at=?
		WHERE id=? AND deleted_at IS NULL`,
		issue.ProgramID, issue.Title, issue.Description,
		string(issue.Status), string(issue.Priority), issue.Source,
		issue.ThreadKey, issue.UpdatedAt, issue.ID,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %s: %w", issue.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) SoftDeleteIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE issues SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Events ---

func (s *SQLiteStore) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = newULID()
	}
	event.CreatedAt = time.Now().UTC()

	attachmentsJSON, err := json.Marshal(event.Attachments)
	if err != nil {
		attachmentsJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, issue_id, source, external_id, author, body, event_type, ai_metadata, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.IssueID, event.Source, event.ExternalID,
		event.Author, event.Body, event.EventType, event.AIMetadata,
		string(attachmentsJSON), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

const eventColumns = `id, issue_id, source, external_id, author, body, event_type, ai_metadata, attachments, created_at, deleted_at`

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	event := &models.Event{}
	var attachmentsJSON string
	var deletedAt sql.NullTime

	err := row.Scan(&event.ID, &event.IssueID, &event.Source, &event.ExternalID,
		&event.Author, &event.Body, &event.EventType, &event.AIMetadata,
		&attachmentsJSON, &event.CreatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	_ = json.Unmarshal([]byte(attachmentsJSON), &event.Attachments)
	if deletedAt.Valid {
		event.DeletedAt = &deletedAt.Time
	}
	return event, nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ? AND deleted_at IS NULL`, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (s *SQLiteStore) ListIssueEvents(ctx context.Context, issueID string) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE issue_id = ? AND deleted_at IS NULL ORDER BY created_at, id`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) ListIssueEventsPage(ctx context.Context, issueID string, offset, limit int) ([]*models.Event, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE issue_id = ? AND deleted_at IS NULL", issueID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE issue_id = ? AND deleted_at IS NULL ORDER BY created_at, id LIMIT ? OFFSET ?`,
		issueID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, total, rows.Err()
}

func (s *SQLiteStore) SetEventAIMetadata(ctx context.Context, eventID, metadata string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE events SET ai_metadata = ? WHERE id = ? AND deleted_at IS NULL",
		metadata, eventID,
	)
	if err != nil {
		return fmt.Errorf("set event metadata: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

// --- AI jobs ---

func (s *SQLiteStore) CreateAIJob(ctx context.Context, job *models.AIJob) error {
	if job.ID == "" {
		job.ID = newULID()
	}
	if job.Status == "" {
		job.Status = models.AIJobStatusPending
	}
	job.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_jobs (id, event_id, job_type, status, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.EventID, job.JobType, string(job.Status), job.Output, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create ai job: %w", err)
	}
	return nil
}

const aiJobColumns = `id, event_id, job_type, status, output, created_at, completed_at, deleted_at`

func scanAIJob(row interface{ Scan(...any) error }) (*models.AIJob, error) {
	job := &models.AIJob{}
	var status string
	var completedAt, deletedAt sql.NullTime

	err := row.Scan(&job.ID, &job.EventID, &job.JobType, &status,
		&job.Output, &job.CreatedAt, &completedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	job.Status = models.AIJobStatus(status)
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if deletedAt.Valid {
		job.DeletedAt = &deletedAt.Time
	}
	return job, nil
}

func (s *SQLiteStore) GetAIJob(ctx context.Context, id string) (*models.AIJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+aiJobColumns+` FROM ai_jobs WHERE id = ? AND deleted_at IS NULL`, id)
	job, err := scanAIJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ai job: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ai job: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) ListPendingAIJobs(ctx context.Context) ([]*models.AIJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+aiJobColumns+` FROM ai_jobs
		WHERE status = 'pending' AND deleted_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list pending ai jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*models.AIJob
	for rows.Next() {
		job, err := scanAIJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ai job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimAIJob moves a job from pending to processing. The conditional
// update makes the claim atomic: of two concurrent workers, exactly one
// sees true. Claiming a job in any other state returns false.
func (s *SQLiteStore) ClaimAIJob(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE ai_jobs SET status = 'processing'
		WHERE id = ? AND status = 'pending' AND deleted_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("claim ai job: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (s *SQLiteStore) CompleteAIJob(ctx context.Context, id, output string) error {
	return s.finishAIJob(ctx, id, models.AIJobStatusCompleted, output)
}

func (s *SQLiteStore) FailAIJob(ctx context.Context, id, output string) error {
	return s.finishAIJob(ctx, id, models.AIJobStatusFailed, output)
}

// finishAIJob records a terminal state. Only a processing job can be
// finished, so terminal states are written at most once.
func (s *SQLiteStore) finishAIJob(ctx context.Context, id string, status models.AIJobStatus, output string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE ai_jobs SET status = ?, output = ?, completed_at = ?
		WHERE id = ? AND status = 'processing' AND deleted_at IS NULL`,
		string(status), output, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finish ai job: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ai job %s not processing: %w", id, ErrNotFound)
	}
	return nil
}

// --- Programs ---

func (s *SQLiteStore) CreateProgram(ctx context.Context, p *models.Program) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	ownersJSON, channelsJSON := marshalStringList(p.Owners), marshalStringList(p.Channels)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO programs (id, program_id, name, description, owners, channels, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProgramID, p.Name, p.Description, ownersJSON, channelsJSON, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("program id %q already exists", p.ProgramID)
		}
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

func marshalStringList(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

const programColumns = `id, program_id, name, description, owners, channels, created_at, updated_at, deleted_at`

func scanProgram(row interface{ Scan(...any) error }) (*models.Program, error) {
	p := &models.Program{}
	var ownersJSON, channelsJSON string
	var deletedAt sql.NullTime

	err := row.Scan(&p.ID, &p.ProgramID, &p.Name, &p.Description,
		&ownersJSON, &channelsJSON, &p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	_ = json.Unmarshal([]byte(ownersJSON), &p.Owners)
	_ = json.Unmarshal([]byte(channelsJSON), &p.Channels)
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return p, nil
}

func (s *SQLiteStore) getProgramWhere(ctx context.Context, where string, args ...any) (*models.Program, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE deleted_at IS NULL AND `+where, args...)
	p, err := scanProgram(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("program: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get program: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	return s.getProgramWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetProgramByExternalID(ctx context.Context, programID string) (*models.Program, error) {
	return s.getProgramWhere(ctx, "program_id = ?", programID)
}

// GetProgramByChannel returns the program whose channel set contains
// channelID. Channel sets are small JSON arrays, so membership is
// checked in Go rather than with JSON1 queries.
func (s *SQLiteStore) GetProgramByChannel(ctx context.Context, channelID string) (*models.Program, error) {
	programs, err := s.ListPrograms(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range programs {
		if p.HasChannel(channelID) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("program for channel %s: %w", channelID, ErrNotFound)
}

func (s *SQLiteStore) ListPrograms(ctx context.Context) ([]*models.Program, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var programs []*models.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

func (s *SQLiteStore) UpdateProgram(ctx context.Context, p *models.Program) error {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE programs SET name=?, description=?, owners=?, channels=?, updated_at=?
		WHERE id=? AND deleted_at IS NULL`,
		p.Name, p.Description, marshalStringList(p.Owners), marshalStringList(p.Channels),
		p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("program %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) SoftDeleteProgram(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE programs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("delete program: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("program %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Participants ---

func (s *SQLiteStore) AddParticipant(ctx context.Context, p *models.Participant) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	if p.Role == "" {
		p.Role = models.ParticipantRoleRequester
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (id, issue_id, user_id, name, email, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.IssueID, p.UserID, p.Name, p.Email, p.Role, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListParticipants(ctx context.Context, issueID string) ([]*models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, issue_id, user_id, name, email, role, created_at FROM participants
		WHERE issue_id = ? AND deleted_at IS NULL ORDER BY created_at`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var participants []*models.Participant
	for rows.Next() {
		p := &models.Participant{}
		if err := rows.Scan(&p.ID, &p.IssueID, &p.UserID, &p.Name, &p.Email, &p.Role, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// --- Owner sets ---

func (s *SQLiteStore) IsIssueOwner(ctx context.Context, issueID, userID string) (bool, error) {
	return s.isOwner(ctx, "issue_owners", "issue_id", issueID, userID)
}

func (s *SQLiteStore) SetIssueOwner(ctx context.Context, issueID, userID string) error {
	return s.setOwner(ctx, "issue_owners", "issue_id", issueID, userID)
}

func (s *SQLiteStore) RemoveIssueOwner(ctx context.Context, issueID, userID string) error {
	return s.removeOwner(ctx, "issue_owners", "issue_id", issueID, userID)
}

func (s *SQLiteStore) IsChannelOwner(ctx context.Context, channelID, userID string) (bool, error) {
	return s.isOwner(ctx, "channel_owners", "channel_id", channelID, userID)
}

func (s *SQLiteStore) SetChannelOwner(ctx context.Context, channelID, userID string) error {
	return s.setOwner(ctx, "channel_owners", "channel_id", channelID, userID)
}

func (s *SQLiteStore) RemoveChannelOwner(ctx context.Context, channelID, userID string) error {
	return s.removeOwner(ctx, "channel_owners", "channel_id", channelID, userID)
}

func (s *SQLiteStore) isOwner(ctx context.Context, table, keyCol, entityID, userID string) (bool, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ? AND user_id = ?", table, keyCol)
	if err := s.db.QueryRowContext(ctx, query, entityID, userID).Scan(&count); err != nil {
		return false, fmt.Errorf("check owner: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) setOwner(ctx context.Context, table, keyCol, entityID, userID string) error {
	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s, user_id, created_at) VALUES (?, ?, ?)", table, keyCol)
	if _, err := s.db.ExecContext(ctx, query, entityID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set owner: %w", err)
	}
	return nil
}

func (s *SQLiteStore) removeOwner(ctx context.Context, table, keyCol, entityID, userID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND user_id = ?", table, keyCol)
	if _, err := s.db.ExecContext(ctx, query, entityID, userID); err != nil {
		return fmt.Errorf("remove owner: %w", err)
	}
	return nil
}
