package reminders

import (
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
)

// NextDueDate moves from forward by one period of freq. Periods are calendar offsets:
// a monthly bill due on Jan 31 next falls due on the last day of February.
func NextDueDate(from time.Time, freq models.Frequency) (time.Time, error) {
	switch freq {
	case models.FrequencyDaily:
		return from.AddDate(0, 0, 1), nil
	case models.FrequencyWeekly:
		return from.AddDate(0, 0, 7), nil
	case models.FrequencyBiweekly:
		return from.AddDate(0, 0, 14), nil
	case models.FrequencyMonthly:
		return addMonths(from, 1), nil
	case models.FrequencyQuarterly:
		return addMonths(from, 3), nil
	case models.FrequencyYearly:
		return addMonths(from, 12), nil
	}
	return time.Time{}, apperr.Validation("Unknown frequency %q", freq)
}

// addMonths clamps the day to the end of the target month instead of overflowing
// into the next one the way time.AddDate does.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
