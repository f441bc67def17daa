package core

import (
	"errors"
	"fmt"
	"time"
)

// Month identifies one calendar month in YYYY-MM form. It is the key for
// MonthlyData records and for the per-month JSON files on disk.
type Month string

var ErrInvalidMonth = errors.New("month must be YYYY-MM")

// ParseMonth validates s and returns it as a Month.
func ParseMonth(s string) (Month, error) {
	m := Month(s)
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// MonthOf returns the Month containing t.
func MonthOf(t time.Time) Month {
	return Month(t.Format("2006-01"))
}

func (m Month) Validate() error {
	t, err := time.Parse("2006-01", string(m))
	if err != nil {
		return Invalid("month", ErrInvalidMonth)
	}
	if t.Year() < 1 {
		return Invalid("month", ErrInvalidMonth)
	}
	return nil
}

// First returns midnight UTC on the first day of the month. The zero time
// is returned for a malformed Month; validate at the boundary first.
func (m Month) First() time.Time {
	t, err := time.Parse("2006-01", string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	first := m.First()
	return first.AddDate(0, 1, -1).Day()
}

// MonthOfYear returns the 1-12 month number.
func (m Month) MonthOfYear() time.Month {
	return m.First().Month()
}

// Year returns the calendar year.
func (m Month) Year() int {
	return m.First().Year()
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	return MonthOf(m.First().AddDate(0, 1, 0))
}

func (m Month) String() string { return string(m) }

// GoString helps %#v output stay readable in test failures.
func (m Month) GoString() string { return fmt.Sprintf("core.Month(%q)", string(m)) }
