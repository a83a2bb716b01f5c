package models

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleStudent   Role = "student"
	RoleAdmin     Role = "admin"
	RoleSuperuser Role = "superuser"
)

type ComputerStatus string

const (
	ComputerAvailable   ComputerStatus = "available"
	ComputerMaintenance ComputerStatus = "maintenance"
	ComputerReserved    ComputerStatus = "reserved"
)

func (s ComputerStatus) Valid() bool {
	switch s {
	case ComputerAvailable, ComputerMaintenance, ComputerReserved:
		return true
	}
	return false
}

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationCancelled, ReservationCompleted:
		return true
	}
	return false
}

type Identity struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type Lab struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Capacity    int    `json:"capacity"`
	Description string `json:"description"`
	OpeningTime string `json:"opening_time"`
	ClosingTime string `json:"closing_time"`
}

type Computer struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Hostname     string         `json:"hostname"`
	Specs        string         `json:"specs"`
	Status       ComputerStatus `json:"status"`
	LaboratoryID int64          `json:"laboratory_id"`
}

// SpecsDescription returns the "description" entry of the JSON specs text,
// or the raw text when it is not a JSON object.
func (c Computer) SpecsDescription() string {
	raw := strings.TrimSpace(c.Specs)
	if raw == "" {
		return ""
	}
	var specs map[string]any
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return raw
	}
	if desc, ok := specs["description"].(string); ok {
		return desc
	}
	return ""
}

type Reservation struct {
	ID         int64             `json:"id"`
	StartTime  Timestamp         `json:"start_time"`
	EndTime    Timestamp         `json:"end_time"`
	Status     ReservationStatus `json:"status"`
	UserID     int64             `json:"user_id"`
	ComputerID int64             `json:"computer_id"`

	// Filled by detail lookups, never sent by the list endpoints.
	Computer   *Computer `json:"computer,omitempty"`
	Laboratory *Lab      `json:"laboratory,omitempty"`
	User       *Identity `json:"user,omitempty"`
}

// Timestamp decodes both RFC 3339 values and the naive ISO form the API emits
// ("2006-01-02T15:04:05"), treating the latter as UTC. It always encodes as
// RFC 3339 UTC.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	var lastErr error
	for _, layout := range naiveLayouts {
		parsed, err := time.ParseInLocation(layout, raw, time.UTC)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}
