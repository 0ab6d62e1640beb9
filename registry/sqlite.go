package registry

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
)

const timeLayout = time.RFC3339Nano

// SQLiteRepository stores the organisation registry in sqlite through
// database/sql.
type SQLiteRepository struct {
	db      *sql.DB
	logger  types.Logger
	nowFunc func() time.Time
}

func OpenSQLite(ctx context.Context, logger types.Logger, cfg *types.DatabaseConfig) (*SQLiteRepository, error) {
	db, err := sql.Open(cfg.Driver, withForeignKeys(cfg.DSN))
	if err != nil {
		return nil, types.Errorf(types.ErrDatabaseOpenFailed, "%v", err)
	}

	maxOpen := cfg.MaxOpenConns
	if strings.Contains(cfg.DSN, ":memory:") || maxOpen <= 0 {
		// each in-memory connection is its own database
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, types.Errorf(types.ErrDatabaseOpenFailed, "%v", err)
	}

	repo := NewSQLiteRepository(db, logger)
	if err = repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Database opened", zap.String("driver", cfg.Driver), zap.Int("max_open_conns", maxOpen))
	return repo, nil
}

// withForeignKeys enables foreign key enforcement on every pooled connection.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func NewSQLiteRepository(db *sql.DB, logger types.Logger) *SQLiteRepository {
	return &SQLiteRepository{db: db, logger: logger, nowFunc: time.Now}
}

// Migrate applies pending schema versions, each in its own transaction.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return types.Errorf(types.ErrDatabaseMigration, "enable foreign keys: %v", err)
	}

	if _, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return types.Errorf(types.ErrDatabaseMigration, "%v", err)
	}

	var current int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return types.Errorf(types.ErrDatabaseMigration, "%v", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		if err := r.applyMigration(ctx, m); err != nil {
			return types.Errorf(types.ErrDatabaseMigration, "version %d: %v", m.version, err)
		}
		r.logger.Info("Migration applied", zap.Int("version", m.version))
	}

	return nil
}

func (r *SQLiteRepository) applyMigration(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.version, r.now()); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) now() string {
	return r.nowFunc().UTC().Format(timeLayout)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func likePattern(q string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.TrimSpace(q)) + "%"
}

func expectAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return types.WrapError(err, entity+" query failed")
	}
	if n == 0 {
		return types.Errorf(types.ErrEntityNotFound, "%s", entity)
	}
	return nil
}

// People

const personColumns = `id, public_id, first_name, last_name, email, phone, created_at, updated_at`

func scanPerson(row scanner) (Person, error) {
	var (
		p                Person
		created, updated string
	)
	err := row.Scan(&p.ID, &p.PublicID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &created, &updated)
	p.CreatedAt, p.UpdatedAt = parseTime(created), parseTime(updated)
	return p, err
}

func (r *SQLiteRepository) CreatePerson(ctx context.Context, in PersonInput) (Person, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO people (public_id, first_name, last_name, email, phone, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), in.FirstName, in.LastName, in.Email, in.Phone, now, now)
	if err != nil {
		return Person{}, translate(err, "person")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Person{}, translate(err, "person")
	}
	return r.GetPerson(ctx, id)
}

func (r *SQLiteRepository) UpdatePerson(ctx context.Context, id int64, in PersonInput) (Person, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE people SET first_name = ?, last_name = ?, email = ?, phone = ?, updated_at = ? WHERE id = ?`,
		in.FirstName, in.LastName, in.Email, in.Phone, r.now(), id)
	if err != nil {
		return Person{}, translate(err, "person")
	}
	if err = expectAffected(res, "person"); err != nil {
		return Person{}, err
	}
	return r.GetPerson(ctx, id)
}

func (r *SQLiteRepository) DeletePerson(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM people WHERE id = ?`, id)
	if err != nil {
		return translate(err, "person")
	}
	return expectAffected(res, "person")
}

func (r *SQLiteRepository) GetPerson(ctx context.Context, id int64) (Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE id = ?`, id))
	if err != nil {
		return Person{}, translate(err, "person")
	}
	return p, nil
}

func (r *SQLiteRepository) ListPeople(ctx context.Context, page Page) ([]Person, error) {
	page = page.Normalize()
	return r.queryPeople(ctx,
		`SELECT `+personColumns+` FROM people ORDER BY last_name, first_name, id LIMIT ? OFFSET ?`,
		page.Limit, page.Offset)
}

func (r *SQLiteRepository) SearchPeople(ctx context.Context, q string, limit int) ([]Person, error) {
	limit = Page{Limit: limit}.Normalize().Limit
	pattern := likePattern(q)
	return r.queryPeople(ctx,
		`SELECT `+personColumns+` FROM people
		 WHERE first_name LIKE ? ESCAPE '\' OR last_name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\'
		    OR (first_name || ' ' || last_name) LIKE ? ESCAPE '\'
		 ORDER BY last_name, first_name, id LIMIT ?`,
		pattern, pattern, pattern, pattern, limit)
}

func (r *SQLiteRepository) queryPeople(ctx context.Context, query string, args ...interface{}) ([]Person, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "people")
	}
	defer rows.Close()

	people := make([]Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, translate(err, "people")
		}
		people = append(people, p)
	}
	return people, translate(rows.Err(), "people")
}

// Departments

const departmentColumns = `id, public_id, name, description, created_at, updated_at`

func scanDepartment(row scanner) (Department, error) {
	var (
		d                Department
		created, updated string
	)
	err := row.Scan(&d.ID, &d.PublicID, &d.Name, &d.Description, &created, &updated)
	d.CreatedAt, d.UpdatedAt = parseTime(created), parseTime(updated)
	return d, err
}

func (r *SQLiteRepository) CreateDepartment(ctx context.Context, in DepartmentInput) (Department, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO departments (public_id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), in.Name, in.Description, now, now)
	if err != nil {
		return Department{}, translate(err, "department")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Department{}, translate(err, "department")
	}
	return r.GetDepartment(ctx, id)
}

func (r *SQLiteRepository) UpdateDepartment(ctx context.Context, id int64, in DepartmentInput) (Department, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE departments SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		in.Name, in.Description, r.now(), id)
	if err != nil {
		return Department{}, translate(err, "department")
	}
	if err = expectAffected(res, "department"); err != nil {
		return Department{}, err
	}
	return r.GetDepartment(ctx, id)
}

func (r *SQLiteRepository) GetDepartment(ctx context.Context, id int64) (Department, error) {
	d, err := scanDepartment(r.db.QueryRowContext(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id = ?`, id))
	if err != nil {
		return Department{}, translate(err, "department")
	}
	return d, nil
}

func (r *SQLiteRepository) ListDepartments(ctx context.Context, page Page) ([]Department, error) {
	page = page.Normalize()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+departmentColumns+` FROM departments ORDER BY name, id LIMIT ? OFFSET ?`, page.Limit, page.Offset)
	if err != nil {
		return nil, translate(err, "departments")
	}
	defer rows.Close()

	departments := make([]Department, 0)
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, translate(err, "departments")
		}
		departments = append(departments, d)
	}
	return departments, translate(rows.Err(), "departments")
}

// Positions

const positionColumns = `id, public_id, title, department_id, description, created_at, updated_at`

func scanPosition(row scanner) (Position, error) {
	var (
		p                Position
		created, updated string
	)
	err := row.Scan(&p.ID, &p.PublicID, &p.Title, &p.DepartmentID, &p.Description, &created, &updated)
	p.CreatedAt, p.UpdatedAt = parseTime(created), parseTime(updated)
	return p, err
}

func (r *SQLiteRepository) CreatePosition(ctx context.Context, in PositionInput) (Position, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO positions (public_id, title, department_id, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), in.Title, in.DepartmentID, in.Description, now, now)
	if err != nil {
		return Position{}, translate(err, "position")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Position{}, translate(err, "position")
	}
	return r.GetPosition(ctx, id)
}

func (r *SQLiteRepository) GetPosition(ctx context.Context, id int64) (Position, error) {
	p, err := scanPosition(r.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id))
	if err != nil {
		return Position{}, translate(err, "position")
	}
	return p, nil
}

func (r *SQLiteRepository) ListPositions(ctx context.Context, page Page) ([]Position, error) {
	page = page.Normalize()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions ORDER BY title, id LIMIT ? OFFSET ?`, page.Limit, page.Offset)
	if err != nil {
		return nil, translate(err, "positions")
	}
	defer rows.Close()

	positions := make([]Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, translate(err, "positions")
		}
		positions = append(positions, p)
	}
	return positions, translate(rows.Err(), "positions")
}

// Employment

const employmentColumns = `id, person_id, position_id, start_date, end_date, is_active, created_at, updated_at`

func scanEmployment(row scanner) (Employment, error) {
	var (
		e                Employment
		endDate          sql.NullString
		created, updated string
	)
	err := row.Scan(&e.ID, &e.PersonID, &e.PositionID, &e.StartDate, &endDate, &e.IsActive, &created, &updated)
	if endDate.Valid {
		e.EndDate = &endDate.String
	}
	e.CreatedAt, e.UpdatedAt = parseTime(created), parseTime(updated)
	return e, err
}

func (r *SQLiteRepository) CreateEmployment(ctx context.Context, in EmploymentInput) (Employment, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO employment (person_id, position_id, start_date, end_date, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.PersonID, in.PositionID, in.StartDate, in.EndDate, in.active(), now, now)
	if err != nil {
		return Employment{}, translate(err, "employment")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Employment{}, translate(err, "employment")
	}
	return r.GetEmployment(ctx, id)
}

func (r *SQLiteRepository) UpdateEmployment(ctx context.Context, id int64, in EmploymentInput) (Employment, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE employment SET person_id = ?, position_id = ?, start_date = ?, end_date = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		in.PersonID, in.PositionID, in.StartDate, in.EndDate, in.active(), r.now(), id)
	if err != nil {
		return Employment{}, translate(err, "employment")
	}
	if err = expectAffected(res, "employment"); err != nil {
		return Employment{}, err
	}
	return r.GetEmployment(ctx, id)
}

func (r *SQLiteRepository) GetEmployment(ctx context.Context, id int64) (Employment, error) {
	e, err := scanEmployment(r.db.QueryRowContext(ctx, `SELECT `+employmentColumns+` FROM employment WHERE id = ?`, id))
	if err != nil {
		return Employment{}, translate(err, "employment")
	}
	return e, nil
}

func (r *SQLiteRepository) ListEmployment(ctx context.Context, page Page) ([]Employment, error) {
	page = page.Normalize()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+employmentColumns+` FROM employment ORDER BY start_date DESC, id LIMIT ? OFFSET ?`, page.Limit, page.Offset)
	if err != nil {
		return nil, translate(err, "employment")
	}
	defer rows.Close()

	records := make([]Employment, 0)
	for rows.Next() {
		e, err := scanEmployment(rows)
		if err != nil {
			return nil, translate(err, "employment")
		}
		records = append(records, e)
	}
	return records, translate(rows.Err(), "employment")
}

// Statistics

func (r *SQLiteRepository) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics

	err := r.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM people),
		(SELECT COUNT(*) FROM departments),
		(SELECT COUNT(*) FROM positions),
		(SELECT COUNT(*) FROM employment),
		(SELECT COUNT(*) FROM employment WHERE is_active = 1)`).
		Scan(&stats.People, &stats.Departments, &stats.Positions, &stats.Employment, &stats.ActiveEmployment)
	if err != nil {
		return Statistics{}, translate(err, "statistics")
	}

	rows, err := r.db.QueryContext(ctx, `SELECT d.id, d.name, COUNT(e.id)
		FROM departments d
		LEFT JOIN positions p ON p.department_id = d.id
		LEFT JOIN employment e ON e.position_id = p.id AND e.is_active = 1
		GROUP BY d.id, d.name
		ORDER BY d.name, d.id`)
	if err != nil {
		return Statistics{}, translate(err, "statistics")
	}
	defer rows.Close()

	stats.Headcount = make([]DepartmentHeadcount, 0)
	for rows.Next() {
		var h DepartmentHeadcount
		if err = rows.Scan(&h.DepartmentID, &h.Name, &h.Active); err != nil {
			return Statistics{}, translate(err, "statistics")
		}
		stats.Headcount = append(stats.Headcount, h)
	}

	return stats, translate(rows.Err(), "statistics")
}
