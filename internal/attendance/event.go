package attendance

import (
	"fmt"
	"time"
)

// Kind classifies a raw attendance event.
type Kind string

const (
	KindCheckin  Kind = "checkin"
	KindCheckout Kind = "checkout"
	KindAbsent   Kind = "absent"
)

// ParseKind validates a kind string coming from the HR API.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCheckin, KindCheckout, KindAbsent:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Backend-assigned tags consumed opaquely by status derivation.
const (
	IndicatorLate  = "Late"
	IndicatorEarly = "Early"
	DayTypeHalf    = "half-day"
)

// Event is one raw attendance record as returned by the HR API.
// Time is the zero value for absent records (the backend sends no
// timestamp sentinel worth keeping).
type Event struct {
	ID              string    `json:"_id"`
	Date            string    `json:"date"`
	Kind            Kind      `json:"type"`
	Time            time.Time `json:"time,omitempty"`
	StatusIndicator string    `json:"status_indicator,omitempty"`
	DayType         string    `json:"day_type,omitempty"`
	PhotoURL        string    `json:"photo_url,omitempty"`
}
