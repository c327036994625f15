package domain

import (
	"fmt"
	"strconv"
	"time"

	dErrors "fundpool/pkg/domain-errors"
)

// Month is a contribution cycle in YYYYMM form (e.g. 202602).
// It is a value type so dues can be keyed by it directly.
type Month int

// ParseMonth validates a YYYYMM cycle identifier.
func ParseMonth(raw string) (Month, error) {
	if len(raw) != 6 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "month must be in YYYYMM form")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "month must be in YYYYMM form")
	}
	m := Month(n)
	if !m.IsValid() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "month must be in YYYYMM form")
	}
	return m, nil
}

// MonthOf returns the cycle containing the given time.
func MonthOf(t time.Time) Month {
	return Month(t.Year()*100 + int(t.Month()))
}

func (m Month) IsValid() bool {
	mm := int(m) % 100
	yyyy := int(m) / 100
	return yyyy >= 1970 && yyyy <= 9999 && mm >= 1 && mm <= 12
}

func (m Month) Year() int { return int(m) / 100 }

func (m Month) Month() time.Month { return time.Month(int(m) % 100) }

// Start returns midnight UTC on the first day of the cycle.
func (m Month) Start() time.Time {
	return time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the instant the cycle closes (start of the next cycle).
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, 0)
}

// Next returns the following cycle, rolling over December correctly.
func (m Month) Next() Month {
	return MonthOf(m.Start().AddDate(0, 1, 0))
}

// Prev returns the preceding cycle.
func (m Month) Prev() Month {
	return MonthOf(m.Start().AddDate(0, -1, 0))
}

func (m Month) String() string {
	return fmt.Sprintf("%06d", int(m))
}
