package entity

import "time"

const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"

	MethodBiometric = "biometric"
	MethodManual    = "manual"

	// DayLayout formats the calendar day a record belongs to.
	DayLayout = "2006-01-02"
)

// Record is one check-in or check-out event. Rows are never updated.
type Record struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	UserName     string    `db:"user_name"`
	Status       string    `db:"status"`
	Method       string    `db:"method"`
	Latitude     *float64  `db:"latitude"`
	Longitude    *float64  `db:"longitude"`
	LocationName *string   `db:"location_name"`
	OccurredAt   time.Time `db:"occurred_at"`
	Day          string    `db:"day"`
	IsCheckout   bool      `db:"is_checkout"`
	ImageURL     *string   `db:"image_url"`
	CreatedAt    time.Time `db:"created_at"`
}

// Location is a captured position; Name stays nil when reverse geocoding
// failed or was skipped.
type Location struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name *string `json:"name"`
}

// RecordView is the wire shape of a Record.
type RecordView struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	Status     string    `json:"status"`
	Method     string    `json:"method"`
	Location   *Location `json:"location"`
	Timestamp  time.Time `json:"timestamp"`
	Day        string    `json:"day"`
	IsCheckout bool      `json:"isCheckout"`
	ImageURL   *string   `json:"imageUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (r *Record) Location() *Location {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	return &Location{Lat: *r.Latitude, Lng: *r.Longitude, Name: r.LocationName}
}

func (r *Record) View() *RecordView {
	return &RecordView{
		ID:         r.ID,
		UserID:     r.UserID,
		UserName:   r.UserName,
		Status:     r.Status,
		Method:     r.Method,
		Location:   r.Location(),
		Timestamp:  r.OccurredAt,
		Day:        r.Day,
		IsCheckout: r.IsCheckout,
		ImageURL:   r.ImageURL,
		CreatedAt:  r.CreatedAt,
	}
}

// Filter narrows a history listing. Days are inclusive YYYY-MM-DD bounds.
type Filter struct {
	UserID  string
	FromDay string
	ToDay   string
	Limit   int
	Offset  int
}

// TodayStatus answers "what has this user done today".
type TodayStatus struct {
	Date          string      `json:"date"`
	HasCheckedIn  bool        `json:"hasCheckedIn"`
	HasCheckedOut bool        `json:"hasCheckedOut"`
	CheckIn       *RecordView `json:"checkIn,omitempty"`
	CheckOut      *RecordView `json:"checkOut,omitempty"`
}

type DailyStats struct {
	Date             string `json:"date"`
	PresentEmployees int    `json:"present_employees"`
	CheckIns         int    `json:"check_ins"`
	CheckOuts        int    `json:"check_outs"`
	Late             int    `json:"late"`
	EarlyDepartures  int    `json:"early_departures"`
}

// DashboardStats aggregates stored records over an inclusive day range.
type DashboardStats struct {
	From             string       `json:"from"`
	To               string       `json:"to"`
	TotalEmployees   int          `json:"total_employees"`
	PresentEmployees int          `json:"present_employees"`
	CheckIns         int          `json:"check_ins"`
	CheckOuts        int          `json:"check_outs"`
	OnTime           int          `json:"on_time"`
	Late             int          `json:"late"`
	Absent           int          `json:"absent"`
	EarlyDepartures  int          `json:"early_departures"`
	Daily            []DailyStats `json:"daily"`
}
