package attendance

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Mark runs the day's state transition as one transaction. The existing
// record is read with FOR UPDATE so a concurrent mark for the same
// (student, course, date) serializes instead of double-inserting; the
// unique constraint on the table backs this up.
func (r *Repository) Mark(ctx context.Context, studentID, courseID, date, markType, t string) (MarkResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return MarkResult{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, student_id, course_id, date, in_time, out_time
		FROM attendance
		WHERE student_id = $1 AND course_id = $2 AND date = $3
		FOR UPDATE
	`, studentID, courseID, date)

	var existing *Record
	var rec Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.CourseID, &rec.Date, &rec.InTime, &rec.OutTime); err == nil {
		existing = &rec
	} else if !errors.Is(err, sql.ErrNoRows) {
		return MarkResult{}, err
	}

	act, msg := transition(existing, markType, t)
	switch act {
	case actionInsert:
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attendance (id, student_id, course_id, date, in_time)
			VALUES ($1, $2, $3, $4, $5)
		`, id, studentID, courseID, date, t); err != nil {
			return MarkResult{}, err
		}
		return MarkResult{OK: true, Message: msg, RecordID: id}, tx.Commit()

	case actionSetOut:
		if _, err := tx.ExecContext(ctx, `
			UPDATE attendance SET out_time = $2 WHERE id = $1
		`, existing.ID, t); err != nil {
			return MarkResult{}, err
		}
		return MarkResult{OK: true, Message: msg, RecordID: existing.ID}, tx.Commit()

	default:
		return MarkResult{OK: false, Message: msg}, nil
	}
}

// History returns a student's records for one course, newest date first.
func (r *Repository) History(ctx context.Context, studentID, courseID string) ([]DayEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, in_time, out_time
		FROM attendance
		WHERE student_id = $1 AND course_id = $2
		ORDER BY date DESC
	`, studentID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DayEntry
	for rows.Next() {
		var e DayEntry
		if err := rows.Scan(&e.Date, &e.InTime, &e.OutTime); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ByCourseDate returns report rows for a course and date, with durations.
func (r *Repository) ByCourseDate(ctx context.Context, courseID, date string) ([]ReportRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT students.name, students.course, attendance.in_time, attendance.out_time
		FROM students
		INNER JOIN attendance ON students.id = attendance.student_id
		WHERE attendance.course_id = $1 AND attendance.date = $2
	`, courseID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ReportRow
	for rows.Next() {
		var row ReportRow
		if err := rows.Scan(&row.Name, &row.Department, &row.InTime, &row.OutTime); err != nil {
			return nil, err
		}
		row.Duration = duration(row.InTime, row.OutTime)
		res = append(res, row)
	}
	return res, rows.Err()
}

// OverviewRow is one record of the all-attendance view.
type OverviewRow struct {
	StudentName string  `json:"student_name"`
	CourseName  string  `json:"course_name"`
	Date        string  `json:"date"`
	InTime      string  `json:"in_time"`
	OutTime     *string `json:"out_time"`
}

// Overview joins all records with student and course names.
func (r *Repository) Overview(ctx context.Context) ([]OverviewRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT students.name, courses.name, attendance.date, attendance.in_time, attendance.out_time
		FROM attendance
		INNER JOIN students ON attendance.student_id = students.id
		INNER JOIN courses ON attendance.course_id = courses.id
		ORDER BY attendance.date DESC, students.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []OverviewRow
	for rows.Next() {
		var row OverviewRow
		if err := rows.Scan(&row.StudentName, &row.CourseName, &row.Date, &row.InTime, &row.OutTime); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// RecordAudit writes one audit row for a processed mark. Used by the worker.
func (r *Repository) RecordAudit(ctx context.Context, attendanceID, markType, method string, matchDistance *float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_audit (id, attendance_id, mark_type, method, match_distance)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), attendanceID, markType, method, matchDistance)
	return err
}
