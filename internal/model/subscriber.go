package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DisplayMode controls the tone of generated messages. It has no scheduling meaning.
type DisplayMode string

const (
	ModeStandard     DisplayMode = "standard"
	ModeAffectionate DisplayMode = "affectionate"
)

// Valid reports whether m is a known mode
func (m DisplayMode) Valid() bool {
	return m == ModeStandard || m == ModeAffectionate
}

// UnmarshalText rejects unknown modes so a corrupt file is detected on load
func (m *DisplayMode) UnmarshalText(text []byte) error {
	switch DisplayMode(text) {
	case ModeStandard, ModeAffectionate:
		*m = DisplayMode(text)
		return nil
	case "":
		*m = ModeStandard
		return nil
	default:
		return fmt.Errorf("unknown display mode %q", string(text))
	}
}

// PendingInput is the per-subscriber state of a two-step interaction.
type PendingInput int

const (
	PendingNone PendingInput = iota
	PendingLocation
	PendingTime
)

var pendingNames = map[PendingInput]string{
	PendingNone:     "none",
	PendingLocation: "awaiting_location",
	PendingTime:     "awaiting_time",
}

// String returns the persisted name of the state
func (p PendingInput) String() string {
	if name, ok := pendingNames[p]; ok {
		return name
	}
	return "PendingInput(" + strconv.Itoa(int(p)) + ")"
}

// Valid reports whether p is a known state
func (p PendingInput) Valid() bool {
	_, ok := pendingNames[p]
	return ok
}

// MarshalText implements encoding.TextMarshaler
func (p PendingInput) MarshalText() ([]byte, error) {
	name, ok := pendingNames[p]
	if !ok {
		return nil, fmt.Errorf("invalid pending input %d", int(p))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *PendingInput) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		*p = PendingNone
		return nil
	}
	for state, name := range pendingNames {
		if name == s {
			*p = state
			return nil
		}
	}
	return fmt.Errorf("unknown pending input %q", s)
}

// Subscriber holds one chat's notification preferences.
// Empty Location or DeliveryTime means "not configured".
type Subscriber struct {
	ID           int64        `json:"subscriber_id" gorm:"primaryKey;autoIncrement:false"`
	Location     string       `json:"location,omitempty" gorm:"size:200"`
	DeliveryTime string       `json:"delivery_time,omitempty" gorm:"size:5;index"`
	Mode         DisplayMode  `json:"display_mode" gorm:"size:20;not null;default:standard"`
	Pending      PendingInput `json:"pending_input" gorm:"not null;default:0"`
	UpdatedAt    time.Time    `json:"-"`
}

// TableName returns the table name for Subscriber
func (Subscriber) TableName() string {
	return "subscribers"
}

// NewSubscriber returns the default record created on first interaction
func NewSubscriber(id int64) Subscriber {
	return Subscriber{
		ID:      id,
		Mode:    ModeStandard,
		Pending: PendingNone,
	}
}

// HasLocation reports whether a location is configured
func (s Subscriber) HasLocation() bool {
	return s.Location != ""
}

// Equal compares the persisted fields of two records
func (s Subscriber) Equal(o Subscriber) bool {
	return s.ID == o.ID &&
		s.Location == o.Location &&
		s.DeliveryTime == o.DeliveryTime &&
		s.Mode == o.Mode &&
		s.Pending == o.Pending
}

// ValidTime reports whether s is a 24-hour HH:MM time.
// Both fields must be exactly two digits, 00-23 and 00-59.
func ValidTime(s string) bool {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || hh[0] == '+' || hh[0] == '-' {
		return false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || mm[0] == '+' || mm[0] == '-' {
		return false
	}
	return h >= 0 && h < 24 && m >= 0 && m < 60
}
