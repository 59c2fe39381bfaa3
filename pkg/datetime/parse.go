// Package datetime provides date and time utility functions.
package datetime

import (
	"fmt"
	"time"

	"github.com/iwvelando/split-payment-forecast/pkg/constants"
)

const (
	// DateTimeLayout is the format of simulation window dates.
	DateTimeLayout = constants.DateTimeLayout
)

// ParseMonth parses a YYYY-MM date.
func ParseMonth(date string) (time.Time, error) {
	t, err := time.Parse(DateTimeLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM, got %q", date)
	}
	return t, nil
}
