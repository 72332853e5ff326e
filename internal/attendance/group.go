package attendance

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Aggregation failure modes. GroupByDate skips offending events and
// reports them joined together; it never aborts an otherwise valid list.
var (
	ErrMissingDate = errors.New("attendance: event missing date")
	ErrInvalidKind = errors.New("attendance: invalid event kind")
)

// Display labels produced by DeriveStatus.
const (
	StatusAbsent        = "Absent"
	StatusLateCheckin   = "Late Check-in"
	StatusEarlyCheckout = "Early Checkout"
	StatusFullDay       = "Full Day"
	StatusHalfDayIn     = "Half Day (In)"
	StatusCheckedIn     = "Checked In"
)

// DayRecord collapses one calendar day of raw events into at most one
// event per kind. Rebuilt from scratch on every aggregation, never
// mutated in place. SortKey is ordering-only and never displayed.
type DayRecord struct {
	Date     string    `json:"date"`
	Checkin  *Event    `json:"checkin"`
	Checkout *Event    `json:"checkout"`
	Absent   *Event    `json:"absent"`
	SortKey  time.Time `json:"-"`
	Status   string    `json:"status"`
}

// GroupByDate folds a flat event list into one DayRecord per distinct
// date, sorted most recent day first. When the input carries two events
// of the same kind on the same date, the later one in iteration order
// wins; source intent for true duplicates is ambiguous, so the overwrite
// is documented behavior rather than an error.
//
// Malformed events (empty date, unknown kind) are skipped and reported
// through the returned error; the records are always usable. Pure: the
// input slice is treated as an immutable snapshot.
func GroupByDate(events []Event) ([]DayRecord, error) {
	byDate := make(map[string]*DayRecord)
	var order []string
	var errs []error

	for i, evt := range events {
		if evt.Date == "" {
			errs = append(errs, fmt.Errorf("event %d (id %q): %w", i, evt.ID, ErrMissingDate))
			continue
		}
		if _, err := ParseKind(string(evt.Kind)); err != nil {
			errs = append(errs, fmt.Errorf("event %d (id %q): %w", i, evt.ID, err))
			continue
		}

		rec, ok := byDate[evt.Date]
		if !ok {
			rec = &DayRecord{Date: evt.Date}
			byDate[evt.Date] = rec
			order = append(order, evt.Date)
		}

		e := evt
		switch e.Kind {
		case KindCheckin:
			rec.Checkin = &e
		case KindCheckout:
			rec.Checkout = &e
		case KindAbsent:
			rec.Absent = &e
		}
	}

	records := make([]DayRecord, 0, len(order))
	for _, date := range order {
		rec := byDate[date]
		rec.SortKey = sortKey(rec)
		rec.Status = DeriveStatus(*rec)
		records = append(records, *rec)
	}

	// Stable so that days with equal keys keep first-seen order.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SortKey.After(records[j].SortKey)
	})

	return records, errors.Join(errs...)
}

// sortKey prefers the checkout time, then checkin, then absent. A record
// with no timestamps at all sorts last on the zero value.
func sortKey(rec *DayRecord) time.Time {
	switch {
	case rec.Checkout != nil && !rec.Checkout.Time.IsZero():
		return rec.Checkout.Time
	case rec.Checkin != nil && !rec.Checkin.Time.IsZero():
		return rec.Checkin.Time
	case rec.Absent != nil:
		return rec.Absent.Time
	}
	return time.Time{}
}

// DeriveStatus computes the display label for one day. The precedence is
// deliberate policy: an absent marker always wins even when a checkin or
// checkout exists for the same date, and a late check-in is reported
// before an early checkout when both indicators are set.
func DeriveStatus(rec DayRecord) string {
	if rec.Absent != nil {
		return StatusAbsent
	}
	if rec.Checkin != nil && rec.Checkout != nil {
		if rec.Checkin.StatusIndicator == IndicatorLate {
			return StatusLateCheckin
		}
		if rec.Checkout.StatusIndicator == IndicatorEarly {
			return StatusEarlyCheckout
		}
		return StatusFullDay
	}
	if rec.Checkin != nil {
		if rec.Checkin.DayType == DayTypeHalf {
			return StatusHalfDayIn
		}
		if rec.Checkin.StatusIndicator == IndicatorLate {
			return StatusLateCheckin
		}
		return StatusCheckedIn
	}
	return ""
}
