package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// Date is a calendar day in UTC. It marshals as "2006-01-02" in both CSV
// artifacts and JSON payloads.
type Date struct {
	time.Time
}

// NewDate truncates t to its UTC calendar day.
func NewDate(t time.Time) Date {
	u := t.UTC()
	return Date{time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(dateLayout)
}

func (d Date) MarshalCSV() (string, error) {
	return d.String(), nil
}

func (d *Date) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	return d.UnmarshalCSV(strings.Trim(string(b), `"`))
}

// DateTime is a second-resolution UTC timestamp. It marshals as
// "2006-01-02 15:04:05", the format the sentiment record artifacts carry
// in their created_utc column.
type DateTime struct {
	time.Time
}

// NewDateTime truncates t to whole seconds in UTC.
func NewDateTime(t time.Time) DateTime {
	return DateTime{t.UTC().Truncate(time.Second)}
}

func (d DateTime) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(dateTimeLayout)
}

// Date returns the UTC calendar day of the timestamp.
func (d DateTime) Date() Date {
	return NewDate(d.Time)
}

func (d DateTime) MarshalCSV() (string, error) {
	return d.String(), nil
}

func (d *DateTime) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = DateTime{}
		return nil
	}
	for _, layout := range []string{dateTimeLayout, time.RFC3339, dateLayout} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*d = DateTime{t.UTC()}
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q: unsupported format", s)
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	return d.UnmarshalCSV(strings.Trim(string(b), `"`))
}

// Month is a calendar month, represented by its first day in UTC. It
// marshals as "2006-01-02" so monthly artifacts stay plain dates.
type Month struct {
	time.Time
}

// NewMonth truncates t to the first day of its UTC month.
func NewMonth(t time.Time) Month {
	u := t.UTC()
	return Month{time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)}
}

// ParseMonth parses a "2006-01-02" string and truncates it to its month.
func ParseMonth(s string) (Month, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return NewMonth(t), nil
}

func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return m.Time.Format(dateLayout)
}

// AddMonths returns the month n months after m (negative n steps back).
func (m Month) AddMonths(n int) Month {
	return NewMonth(m.Time.AddDate(0, n, 0))
}

func (m Month) MarshalCSV() (string, error) {
	return m.String(), nil
}

func (m *Month) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*m = Month{}
		return nil
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Month) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Month) UnmarshalJSON(b []byte) error {
	return m.UnmarshalCSV(strings.Trim(string(b), `"`))
}
