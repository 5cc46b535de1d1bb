package registry

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// StudentProfile is a student's profile row, owned by one account.
type StudentProfile struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Course       string `json:"course"`
	ResumePath   string `json:"resume_path"`
	PhotoPath    string `json:"photo_path"`
	StudentID    string `json:"student_id"`
	RegisterNo   string `json:"register_no"`
	AcademicYear string `json:"academic_year"`
}

// Registry persists the course catalog and student profiles.
type Registry struct {
	db *sql.DB
}

// New creates a registry.
func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// ListCourses returns all course names. No ordering is promised.
func (r *Registry) ListCourses(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM courses`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AddCourse inserts a course, returning false when the name already exists.
func (r *Registry) AddCourse(ctx context.Context, name string) (bool, error) {
	_, err := r.db.ExecContext(ctx, `INSERT INTO courses (id, name) VALUES ($1, $2)`, uuid.NewString(), name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteCourse removes a course by name. Succeeds silently when absent and
// does not cascade to profiles or attendance history.
func (r *Registry) DeleteCourse(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE name = $1`, name)
	return err
}

// CourseID resolves a course name to its id. Returns "" when unknown.
func (r *Registry) CourseID(ctx context.Context, name string) (string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id FROM courses WHERE name = $1`, name)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// SearchStudents matches the query case-insensitively against name or email,
// optionally restricted to one course. An empty query matches everyone.
func (r *Registry) SearchStudents(ctx context.Context, query, courseFilter string) ([]StudentProfile, error) {
	sqlQuery := `
		SELECT id, user_id, name, email, course, resume_path, photo_path, student_id, register_no, academic_year
		FROM students
		WHERE (name ILIKE $1 OR email ILIKE $1)`
	args := []any{"%" + query + "%"}
	if courseFilter != "" {
		sqlQuery += ` AND course = $2`
		args = append(args, courseFilter)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// GetByAccount returns the profile owned by the account, or nil when absent.
func (r *Registry) GetByAccount(ctx context.Context, accountID string) (*StudentProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, email, course, resume_path, photo_path, student_id, register_no, academic_year
		FROM students WHERE user_id = $1
	`, accountID)
	var p StudentProfile
	if err := scanProfile(row, &p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetByID returns the profile with the given student id, or nil when absent.
func (r *Registry) GetByID(ctx context.Context, studentID string) (*StudentProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, email, course, resume_path, photo_path, student_id, register_no, academic_year
		FROM students WHERE id = $1
	`, studentID)
	var p StudentProfile
	if err := scanProfile(row, &p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpdateProfile overwrites every profile field for the account's student row.
func (r *Registry) UpdateProfile(ctx context.Context, accountID string, p StudentProfile) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET name=$2, email=$3, course=$4, student_id=$5, register_no=$6, academic_year=$7, resume_path=$8, photo_path=$9
		WHERE user_id=$1
	`, accountID, p.Name, p.Email, p.Course, p.StudentID, p.RegisterNo, p.AcademicYear, p.ResumePath, p.PhotoPath)
	return err
}

// DeleteStudent removes the profile row only. The owning account and any
// attendance history referencing the old student id stay behind.
func (r *Registry) DeleteStudent(ctx context.Context, studentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, studentID)
	return err
}

// CoursesOf returns the course names the account's student is enrolled in.
// The portal keeps one course per student, so this is zero or one name.
func (r *Registry) CoursesOf(ctx context.Context, accountID string) ([]string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT course FROM students WHERE user_id = $1`, accountID)
	var course string
	if err := row.Scan(&course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return []string{course}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner, p *StudentProfile) error {
	return row.Scan(&p.ID, &p.AccountID, &p.Name, &p.Email, &p.Course,
		&p.ResumePath, &p.PhotoPath, &p.StudentID, &p.RegisterNo, &p.AcademicYear)
}

func scanProfiles(rows *sql.Rows) ([]StudentProfile, error) {
	var res []StudentProfile
	for rows.Next() {
		var p StudentProfile
		if err := scanProfile(rows, &p); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
