package attendance

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLedger(NewRepository(db)), mock
}

var attendanceCols = []string{"id", "student_id", "course_id", "date", "in_time", "out_time"}

func TestMarkInThenOutStoresExactlyOneRecord(t *testing.T) {
	l, mock := newMockLedger(t)
	ctx := context.Background()

	// In on an empty day: one insert, one commit.
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("stu-1", "crs-1", "2026-02-02").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO attendance").
		WithArgs(sqlmock.AnyArg(), "stu-1", "crs-1", "2026-02-02", "09:00:00").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := l.Mark(ctx, "stu-1", "crs-1", MarkIn, "2026-02-02", "09:00:00")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "Attendance marked successfully", res.Message)
	assert.NotEmpty(t, res.RecordID)

	// Out later the same day: the existing row gets its out_time set,
	// no second insert.
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("stu-1", "crs-1", "2026-02-02").
		WillReturnRows(sqlmock.NewRows(attendanceCols).
			AddRow("rec-1", "stu-1", "crs-1", "2026-02-02", "09:00:00", nil))
	mock.ExpectExec("UPDATE attendance SET out_time").
		WithArgs("rec-1", "17:00:00").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err = l.Mark(ctx, "stu-1", "crs-1", MarkOut, "2026-02-02", "17:00:00")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "rec-1", res.RecordID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInTwiceRejectsWithoutSecondInsert(t *testing.T) {
	l, mock := newMockLedger(t)

	// The day already has a row, so the second In never reaches an insert.
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("stu-1", "crs-1", "2026-02-02").
		WillReturnRows(sqlmock.NewRows(attendanceCols).
			AddRow("rec-1", "stu-1", "crs-1", "2026-02-02", "09:00:00", nil))
	mock.ExpectRollback()

	res, err := l.Mark(context.Background(), "stu-1", "crs-1", MarkIn, "2026-02-02", "10:00:00")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "Attendance already marked for today", res.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOutWithoutInRejectsWithoutWrite(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("stu-1", "crs-1", "2026-02-02").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	res, err := l.Mark(context.Background(), "stu-1", "crs-1", MarkOut, "2026-02-02", "17:00:00")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "Cannot mark Out without marking In first", res.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}
