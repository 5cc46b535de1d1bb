package store

import "context"

// schema mirrors the portal's five core tables plus the audit trail the
// worker writes. Foreign keys are declared without cascade rules: deleting
// a course or a student deliberately leaves historical rows behind.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		id UUID PRIMARY KEY,
		user_id UUID UNIQUE NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		course TEXT NOT NULL,
		resume_path TEXT NOT NULL DEFAULT '',
		photo_path TEXT NOT NULL DEFAULT '',
		student_id TEXT NOT NULL DEFAULT '',
		register_no TEXT NOT NULL DEFAULT '',
		academic_year TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS pending_registrations (
		id UUID PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		course TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id UUID PRIMARY KEY,
		name TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id UUID PRIMARY KEY,
		student_id UUID NOT NULL REFERENCES students(id),
		course_id UUID NOT NULL REFERENCES courses(id),
		date TEXT NOT NULL,
		in_time TEXT NOT NULL,
		out_time TEXT,
		UNIQUE (student_id, course_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_audit (
		id UUID PRIMARY KEY,
		attendance_id UUID NOT NULL,
		mark_type TEXT NOT NULL,
		method TEXT NOT NULL,
		match_distance DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates all tables if they do not exist yet.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
