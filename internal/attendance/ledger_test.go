package attendance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestTransition(t *testing.T) {
	checkedIn := &Record{ID: "rec-1", InTime: "09:00:00"}
	checkedOut := &Record{ID: "rec-2", InTime: "09:00:00", OutTime: strPtr("17:00:00")}

	tests := []struct {
		name       string
		existing   *Record
		markType   string
		time       string
		wantAction action
		wantMsg    string
	}{
		{
			name:       "first in creates the record",
			existing:   nil,
			markType:   MarkIn,
			time:       "09:00:00",
			wantAction: actionInsert,
			wantMsg:    "Attendance marked successfully",
		},
		{
			name:       "second in is rejected",
			existing:   checkedIn,
			markType:   MarkIn,
			time:       "09:05:00",
			wantAction: actionReject,
			wantMsg:    "Attendance already marked for today",
		},
		{
			name:       "out without in is rejected",
			existing:   nil,
			markType:   MarkOut,
			time:       "17:00:00",
			wantAction: actionReject,
			wantMsg:    "Cannot mark Out without marking In first",
		},
		{
			name:       "out before in is rejected",
			existing:   checkedIn,
			markType:   MarkOut,
			time:       "08:59:00",
			wantAction: actionReject,
			wantMsg:    "Out time cannot be earlier than or equal to In time",
		},
		{
			name:       "out equal to in is rejected",
			existing:   checkedIn,
			markType:   MarkOut,
			time:       "09:00:00",
			wantAction: actionReject,
			wantMsg:    "Out time cannot be earlier than or equal to In time",
		},
		{
			name:       "out after in closes the day",
			existing:   checkedIn,
			markType:   MarkOut,
			time:       "17:00:00",
			wantAction: actionSetOut,
			wantMsg:    "Attendance marked successfully",
		},
		{
			name:       "in after checkout is rejected",
			existing:   checkedOut,
			markType:   MarkIn,
			time:       "18:00:00",
			wantAction: actionReject,
			wantMsg:    "Attendance already marked for today",
		},
		{
			name:       "out after checkout is rejected",
			existing:   checkedOut,
			markType:   MarkOut,
			time:       "18:00:00",
			wantAction: actionReject,
			wantMsg:    "Attendance already marked for today",
		},
		{
			name:       "malformed time is rejected",
			existing:   nil,
			markType:   MarkIn,
			time:       "9 o'clock",
			wantAction: actionReject,
			wantMsg:    "Invalid time format, expected HH:MM:SS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, msg := transition(tt.existing, tt.markType, tt.time)
			assert.Equal(t, tt.wantAction, act)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name    string
		inTime  string
		outTime *string
		want    string
	}{
		{"full working day", "09:00:00", strPtr("17:00:00"), "08:00:00"},
		{"minutes and seconds", "09:15:30", strPtr("11:45:00"), "02:29:30"},
		{"still checked in", "09:00:00", nil, "N/A"},
		{"bad stored in time", "not-a-time", strPtr("17:00:00"), "N/A"},
		{"bad stored out time", "09:00:00", strPtr("late"), "N/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, duration(tt.inTime, tt.outTime))
		})
	}
}

func TestLedgerMarkRejectsUnknownType(t *testing.T) {
	l := NewLedger(nil)
	res, err := l.Mark(context.Background(), "s1", "c1", "Sideways", "", "")
	assert.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "Unknown attendance type", res.Message)
}
