package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hylla/timeboard/internal/app"
	"github.com/hylla/timeboard/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// busyTimeoutMS bounds how long a writer waits on a competing transaction.
const busyTimeoutMS = 5000

// tsLayout is fixed-width UTC at millisecond precision so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// Repository stores tasks and time logs. It implements app.TaskStore and app.TimeLogStore.
type Repository struct {
	db *sql.DB
}

// Open opens a file-backed database, creating its directory and schema as needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, fileDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database on a single connection.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// fileDSN enables WAL, a busy timeout, and IMMEDIATE write transactions so
// read-modify-write updates serialize instead of failing on lock upgrade.
func fileDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate creates the schema. Statements are idempotent.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			start_date TEXT,
			due_date TEXT,
			estimated_hours REAL NOT NULL DEFAULT 0,
			progress INTEGER NOT NULL DEFAULT 0,
			assigned_json TEXT NOT NULL DEFAULT '[]',
			checklist_json TEXT NOT NULL DEFAULT '[]',
			remarks_json TEXT NOT NULL DEFAULT '[]',
			comments_json TEXT NOT NULL DEFAULT '[]',
			dependencies_json TEXT NOT NULL DEFAULT '[]',
			attachments_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		// time_logs.task_id has no foreign key: logs outlive deleted tasks as history.
		`CREATE TABLE IF NOT EXISTS time_logs (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_time_logs_running ON time_logs(task_id, user_id) WHERE end_time IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_time_logs_task_start ON time_logs(task_id, start_time DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_time_logs_user_start ON time_logs(user_id, start_time);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_created ON tasks(project_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// taskColumns lists task columns in scan order.
const taskColumns = `t.id, t.project_id, t.title, t.description, t.priority, t.status, t.created_by, t.start_date, t.due_date,
	t.estimated_hours, t.progress, t.assigned_json, t.checklist_json, t.remarks_json, t.comments_json,
	t.dependencies_json, t.attachments_json, t.created_at, t.updated_at`

// CreateTask inserts a task.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	row, err := encodeTask(t)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks(
			id, project_id, title, description, priority, status, created_by, start_date, due_date,
			estimated_hours, progress, assigned_json, checklist_json, remarks_json, comments_json,
			dependencies_json, attachments_json, created_at, updated_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.ProjectID,
		t.Title,
		t.Description,
		string(t.Priority),
		string(t.Status),
		t.CreatedBy,
		nullableTS(t.StartDate),
		nullableTS(t.DueDate),
		t.EstimatedHours,
		t.Progress,
		row.assigned,
		row.checklist,
		row.remarks,
		row.comments,
		row.dependencies,
		row.attachments,
		ts(t.CreatedAt),
		ts(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("%w: task %q already exists", app.ErrConflict, t.ID)
		}
		return err
	}
	return nil
}

// GetTask returns one task.
func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTaskByID(ctx, r.db, id)
}

// UpdateTask applies mutate to the stored task inside one write transaction.
func (r *Repository) UpdateTask(ctx context.Context, id string, mutate func(*domain.Task) error) (out domain.Task, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	task, err := getTaskByID(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err = mutate(&task); err != nil {
		return domain.Task{}, err
	}
	row, err := encodeTask(task)
	if err != nil {
		return domain.Task{}, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET project_id = ?, title = ?, description = ?, priority = ?, status = ?, start_date = ?, due_date = ?,
		    estimated_hours = ?, progress = ?, assigned_json = ?, checklist_json = ?, remarks_json = ?, comments_json = ?,
		    dependencies_json = ?, attachments_json = ?, updated_at = ?
		WHERE id = ?
	`,
		task.ProjectID,
		task.Title,
		task.Description,
		string(task.Priority),
		string(task.Status),
		nullableTS(task.StartDate),
		nullableTS(task.DueDate),
		task.EstimatedHours,
		task.Progress,
		row.assigned,
		row.checklist,
		row.remarks,
		row.comments,
		row.dependencies,
		row.attachments,
		ts(task.UpdatedAt),
		task.ID,
	)
	if err != nil {
		return domain.Task{}, err
	}
	if err = translateNoRows(res); err != nil {
		return domain.Task{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task. Its time logs are kept.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListTasks returns tasks matching q.
func (r *Repository) ListTasks(ctx context.Context, q app.TaskQuery) ([]domain.Task, error) {
	where, args := taskWhere(q)
	query := `SELECT ` + taskColumns + ` FROM tasks t` + where
	switch q.Sort {
	case app.SortLoggedHours:
		query += ` ORDER BY (
			SELECT COALESCE(SUM(l.duration_ms), 0) FROM time_logs l WHERE l.task_id = t.id AND l.end_time IS NOT NULL
		) DESC, t.created_at DESC, t.id ASC`
	default:
		query += ` ORDER BY t.created_at DESC, t.id ASC`
	}
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// CountTasks counts tasks matching q. Sort and Limit are ignored.
func (r *Repository) CountTasks(ctx context.Context, q app.TaskQuery) (int, error) {
	where, args := taskWhere(q)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks t`+where, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// taskWhere renders q's predicates. Assignee membership is matched against the JSON array.
func taskWhere(q app.TaskQuery) (string, []any) {
	clauses := []string{}
	args := []any{}
	if q.IDs != nil {
		// SQLite accepts an empty IN list, so an empty non-nil IDs matches nothing.
		clauses = append(clauses, `t.id IN (`+strings.TrimSuffix(strings.Repeat("?, ", len(q.IDs)), ", ")+`)`)
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}
	if q.ProjectID != "" {
		clauses = append(clauses, `t.project_id = ?`)
		args = append(args, q.ProjectID)
	}
	if q.AssigneeID != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM json_each(t.assigned_json) a WHERE a.value = ?)`)
		args = append(args, q.AssigneeID)
	}
	if q.Status != "" {
		clauses = append(clauses, `t.status = ?`)
		args = append(args, string(q.Status))
	}
	if q.Priority != "" {
		clauses = append(clauses, `t.priority = ?`)
		args = append(args, string(q.Priority))
	}
	if q.OverdueBefore != nil {
		clauses = append(clauses, `t.status <> ? AND t.due_date IS NOT NULL AND t.due_date < ?`)
		args = append(args, string(domain.StatusCompleted), ts(*q.OverdueBefore))
	}
	if q.DueBetween != nil {
		clauses = append(clauses, `t.due_date IS NOT NULL AND t.due_date >= ? AND t.due_date <= ?`)
		args = append(args, ts(q.DueBetween.From), ts(q.DueBetween.To))
	}
	if q.CreatedBetween != nil {
		clauses = append(clauses, `t.created_at >= ? AND t.created_at <= ?`)
		args = append(args, ts(q.CreatedBetween.From), ts(q.CreatedBetween.To))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return ` WHERE ` + strings.Join(clauses, ` AND `), args
}

// CreateTimeLog inserts a running log. The partial unique index on open logs
// turns a second running log for the same pair into a constraint violation.
func (r *Repository) CreateTimeLog(ctx context.Context, l domain.TimeLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO time_logs(id, task_id, user_id, start_time, end_time, duration_ms)
		VALUES(?, ?, ?, ?, ?, ?)
	`, l.ID, l.TaskID, l.UserID, ts(l.StartTime), nullableTS(l.EndTime), l.DurationMS)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("%w: running timer exists for task %q and user %q", app.ErrConflict, l.TaskID, l.UserID)
		}
		return err
	}
	return nil
}

// GetTimeLog returns one time log.
func (r *Repository) GetTimeLog(ctx context.Context, id string) (domain.TimeLog, error) {
	return getTimeLogByID(ctx, r.db, id)
}

// UpdateTimeLog applies mutate to the stored log inside one write transaction.
func (r *Repository) UpdateTimeLog(ctx context.Context, id string, mutate func(*domain.TimeLog) error) (out domain.TimeLog, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeLog{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	log, err := getTimeLogByID(ctx, tx, id)
	if err != nil {
		return domain.TimeLog{}, err
	}
	if err = mutate(&log); err != nil {
		return domain.TimeLog{}, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE time_logs SET end_time = ?, duration_ms = ? WHERE id = ?
	`, nullableTS(log.EndTime), log.DurationMS, log.ID)
	if err != nil {
		return domain.TimeLog{}, err
	}
	if err = translateNoRows(res); err != nil {
		return domain.TimeLog{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.TimeLog{}, err
	}
	return log, nil
}

// FindActiveTimeLog returns the running log for a pair, if any.
func (r *Repository) FindActiveTimeLog(ctx context.Context, taskID, userID string) (domain.TimeLog, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, task_id, user_id, start_time, end_time, duration_ms
		FROM time_logs
		WHERE task_id = ? AND user_id = ? AND end_time IS NULL
	`, taskID, userID)
	log, err := scanTimeLog(row)
	if errors.Is(err, app.ErrNotFound) {
		return domain.TimeLog{}, false, nil
	}
	if err != nil {
		return domain.TimeLog{}, false, err
	}
	return log, true, nil
}

// ListTimeLogsByTask returns a task's logs, newest start first.
func (r *Repository) ListTimeLogsByTask(ctx context.Context, taskID string) ([]domain.TimeLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, user_id, start_time, end_time, duration_ms
		FROM time_logs
		WHERE task_id = ?
		ORDER BY start_time DESC, id DESC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.TimeLog{}
	for rows.Next() {
		log, err := scanTimeLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

// ListTimeLogs returns logs matching q ordered by user, then start time.
func (r *Repository) ListTimeLogs(ctx context.Context, q app.TimeLogQuery) ([]domain.TimeLog, error) {
	clauses := []string{}
	args := []any{}
	if q.UserID != "" {
		clauses = append(clauses, `user_id = ?`)
		args = append(args, q.UserID)
	}
	switch q.State {
	case app.RunningTimeLogs:
		clauses = append(clauses, `end_time IS NULL`)
	case app.ClosedTimeLogs:
		clauses = append(clauses, `end_time IS NOT NULL`)
	}
	if q.StartedBetween != nil {
		clauses = append(clauses, `start_time >= ? AND start_time <= ?`)
		args = append(args, ts(q.StartedBetween.From), ts(q.StartedBetween.To))
	}
	query := `
		SELECT id, task_id, user_id, start_time, end_time, duration_ms
		FROM time_logs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY user_id ASC, start_time ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.TimeLog{}
	for rows.Next() {
		log, err := scanTimeLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

// SumDurations totals closed-log durations per task.
func (r *Repository) SumDurations(ctx context.Context, taskIDs []string) (map[string]int64, error) {
	out := map[string]int64{}
	if len(taskIDs) == 0 {
		return out, nil
	}
	idsJSON, err := json.Marshal(taskIDs)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_id, SUM(duration_ms)
		FROM time_logs
		WHERE end_time IS NOT NULL AND task_id IN (SELECT value FROM json_each(?))
		GROUP BY task_id
	`, string(idsJSON))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			taskID string
			total  int64
		)
		if err := rows.Scan(&taskID, &total); err != nil {
			return nil, err
		}
		out[taskID] = total
	}
	return out, rows.Err()
}

// queryRower represents the read contract shared by DB and Tx.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func getTaskByID(ctx context.Context, q queryRower, id string) (domain.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id)
	return scanTask(row)
}

func getTimeLogByID(ctx context.Context, q queryRower, id string) (domain.TimeLog, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, task_id, user_id, start_time, end_time, duration_ms
		FROM time_logs
		WHERE id = ?
	`, id)
	return scanTimeLog(row)
}
