package geocode

import (
	"encoding/json"
	"sort"
	"time"

	"googlemaps.github.io/maps"
)

// WeekHours is the normalized opening-hours document stored on the record.
type WeekHours struct {
	Monday    []Interval `json:"monday,omitempty"`
	Tuesday   []Interval `json:"tuesday,omitempty"`
	Wednesday []Interval `json:"wednesday,omitempty"`
	Thursday  []Interval `json:"thursday,omitempty"`
	Friday    []Interval `json:"friday,omitempty"`
	Saturday  []Interval `json:"saturday,omitempty"`
	Sunday    []Interval `json:"sunday,omitempty"`
}

// Interval is one open span in "HH:MM" clock time.
type Interval struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Empty reports whether no day carries any interval.
func (w WeekHours) Empty() bool {
	return len(w.Monday) == 0 && len(w.Tuesday) == 0 && len(w.Wednesday) == 0 &&
		len(w.Thursday) == 0 && len(w.Friday) == 0 && len(w.Saturday) == 0 &&
		len(w.Sunday) == 0
}

// normalizeHours converts the provider's period list into WeekHours.
// Periods without a close time (24h places) get an open-ended interval.
func normalizeHours(oh *maps.OpeningHours) WeekHours {
	var week WeekHours
	if oh == nil {
		return week
	}

	byDay := map[time.Weekday]*[]Interval{
		time.Sunday:    &week.Sunday,
		time.Monday:    &week.Monday,
		time.Tuesday:   &week.Tuesday,
		time.Wednesday: &week.Wednesday,
		time.Thursday:  &week.Thursday,
		time.Friday:    &week.Friday,
		time.Saturday:  &week.Saturday,
	}

	for _, p := range oh.Periods {
		day, ok := byDay[p.Open.Day]
		if !ok {
			continue
		}
		*day = append(*day, Interval{
			Open:  formatClock(p.Open.Time),
			Close: formatClock(p.Close.Time),
		})
	}

	for _, day := range byDay {
		sort.Slice(*day, func(i, j int) bool { return (*day)[i].Open < (*day)[j].Open })
	}
	return week
}

// hoursDocument renders the normalized hours as the JSON document carried in
// clean.opening_hours, or "" when the provider sent nothing usable.
func hoursDocument(oh *maps.OpeningHours) string {
	week := normalizeHours(oh)
	if week.Empty() {
		return ""
	}
	raw, err := json.Marshal(week)
	if err != nil {
		return ""
	}
	return string(raw)
}

// formatClock turns the provider's "HHMM" into "HH:MM".
func formatClock(hhmm string) string {
	if len(hhmm) == 4 {
		return hhmm[:2] + ":" + hhmm[2:]
	}
	return hhmm
}
