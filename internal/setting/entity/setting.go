package entity

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Setting is a versioned JSON value stored under a well-known key.
type Setting struct {
	ID        string         `db:"id" json:"id"`
	Category  string         `db:"category" json:"category,omitempty"`
	Value     types.JSONText `db:"value" json:"value"`
	Version   int64          `db:"version" json:"version"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
	UpdatedBy string         `db:"updated_by" json:"updatedBy,omitempty"`
}

const (
	KeyBusinessHours    = "business_hours"
	CategoryAttendance  = "attendance"
	DefaultCheckInStart = "09:00"
	DefaultCheckOutEnd  = "17:00"
	DefaultLateGrace    = 15
	MaxLateGraceMinutes = 240
)

// BusinessHours drives late and early-departure classification.
type BusinessHours struct {
	CheckInStart     string    `json:"checkInStart"`
	CheckOutEnd      string    `json:"checkOutEnd"`
	LateGraceMinutes int       `json:"lateGraceMinutes"`
	Version          int64     `json:"version"`
	UpdatedAt        time.Time `json:"updatedAt"`
	UpdatedBy        string    `json:"updatedBy,omitempty"`
}

func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		CheckInStart:     DefaultCheckInStart,
		CheckOutEnd:      DefaultCheckOutEnd,
		LateGraceMinutes: DefaultLateGrace,
	}
}

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (b BusinessHours) Validate() error {
	start, err := ParseClock(b.CheckInStart)
	if err != nil {
		return err
	}
	end, err := ParseClock(b.CheckOutEnd)
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("checkOutEnd must be after checkInStart")
	}
	if b.LateGraceMinutes < 0 || b.LateGraceMinutes > MaxLateGraceMinutes {
		return fmt.Errorf("lateGraceMinutes must be between 0 and %d", MaxLateGraceMinutes)
	}
	return nil
}

func minuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }

// IsLate reports whether a check-in at local time t falls after start plus grace.
func (b BusinessHours) IsLate(t time.Time) bool {
	start, err := ParseClock(b.CheckInStart)
	if err != nil {
		return false
	}
	return minuteOfDay(t) > start+b.LateGraceMinutes
}

// IsEarlyDeparture reports whether a check-out at local time t precedes the end of the day.
func (b BusinessHours) IsEarlyDeparture(t time.Time) bool {
	end, err := ParseClock(b.CheckOutEnd)
	if err != nil {
		return false
	}
	return minuteOfDay(t) < end
}
