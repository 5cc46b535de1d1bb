package attendance

import (
	"context"
	"fmt"
	"time"
)

// Mark types accepted by the ledger.
const (
	MarkIn  = "In"
	MarkOut = "Out"
)

// Layouts for the ledger's date and time-of-day columns.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Record is one in/out pair for a (student, course, date).
type Record struct {
	ID        string  `json:"id"`
	StudentID string  `json:"student_id"`
	CourseID  string  `json:"course_id"`
	Date      string  `json:"date"`
	InTime    string  `json:"in_time"`
	OutTime   *string `json:"out_time"`
}

// DayEntry is a read-only projection for a student's own history.
type DayEntry struct {
	Date    string  `json:"date"`
	InTime  string  `json:"in_time"`
	OutTime *string `json:"out_time"`
}

// ReportRow is one row of the per-course, per-date report, with the
// computed duration or "N/A" when the day is still open.
type ReportRow struct {
	Name       string  `json:"name"`
	Department string  `json:"department"`
	InTime     string  `json:"in_time"`
	OutTime    *string `json:"out_time"`
	Duration   string  `json:"duration"`
}

// MarkResult is the outcome of a mark operation. OK false carries a
// user-facing rejection message; storage failures surface as errors instead.
type MarkResult struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message"`
	RecordID string `json:"record_id,omitempty"`
}

type action int

const (
	actionReject action = iota
	actionInsert
	actionSetOut
)

// transition decides what a mark does to the day's record.
// Per day a record moves NoRecord -> CheckedIn -> CheckedOut; a checked-out
// record falls into the same "already marked" branch as a checked-in one.
func transition(existing *Record, markType, t string) (action, string) {
	if existing != nil {
		if markType == MarkIn || existing.OutTime != nil {
			return actionReject, "Attendance already marked for today"
		}
		inTime, err := time.Parse(TimeLayout, existing.InTime)
		if err != nil {
			return actionReject, "Invalid stored In time"
		}
		outTime, err := time.Parse(TimeLayout, t)
		if err != nil {
			return actionReject, "Invalid time format, expected HH:MM:SS"
		}
		if !outTime.After(inTime) {
			return actionReject, "Out time cannot be earlier than or equal to In time"
		}
		return actionSetOut, "Attendance marked successfully"
	}
	if markType == MarkOut {
		return actionReject, "Cannot mark Out without marking In first"
	}
	if _, err := time.Parse(TimeLayout, t); err != nil {
		return actionReject, "Invalid time format, expected HH:MM:SS"
	}
	return actionInsert, "Attendance marked successfully"
}

// duration renders out-in as HH:MM:SS, or "N/A" if either side is missing.
// Both times are time-of-day values on the same date, so no overnight spans.
func duration(inTime string, outTime *string) string {
	if inTime == "" || outTime == nil {
		return "N/A"
	}
	in, err := time.Parse(TimeLayout, inTime)
	if err != nil {
		return "N/A"
	}
	out, err := time.Parse(TimeLayout, *outTime)
	if err != nil {
		return "N/A"
	}
	d := out.Sub(in)
	if d < 0 {
		return "N/A"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Ledger records and reports attendance.
type Ledger struct {
	repo *Repository
}

// NewLedger creates a ledger backed by a repository.
func NewLedger(repo *Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Mark applies an In or Out event for (student, course) on the given date.
// Empty date/time default to now. Business rejections come back in the
// result; only storage failures are errors.
func (l *Ledger) Mark(ctx context.Context, studentID, courseID, markType, date, t string) (MarkResult, error) {
	if markType != MarkIn && markType != MarkOut {
		return MarkResult{OK: false, Message: "Unknown attendance type"}, nil
	}
	now := time.Now()
	if date == "" {
		date = now.Format(DateLayout)
	}
	if t == "" {
		t = now.Format(TimeLayout)
	}
	return l.repo.Mark(ctx, studentID, courseID, date, markType, t)
}

// History returns the student's records for a course, newest date first.
func (l *Ledger) History(ctx context.Context, studentID, courseID string) ([]DayEntry, error) {
	return l.repo.History(ctx, studentID, courseID)
}

// ByCourseDate returns the report rows for a course on one date.
func (l *Ledger) ByCourseDate(ctx context.Context, courseID, date string) ([]ReportRow, error) {
	return l.repo.ByCourseDate(ctx, courseID, date)
}

// Overview returns every record joined with student and course names.
func (l *Ledger) Overview(ctx context.Context) ([]OverviewRow, error) {
	return l.repo.Overview(ctx)
}
