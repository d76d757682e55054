package minomess

import (
	"errors"
	"fmt"

	"gitlab.com/d21d3q/minowmbus/internal/driver/wmbus"
)

const (
	// ProfileMonths is the number of monthly windows in the reverse compact
	// profile register (months n-2 to n-15).
	ProfileMonths = 14

	windowLen        = 6
	firstWindowStart = 78

	// uncommissioned marks a window the meter has not filled in yet.
	uncommissioned = '8'
)

// MonthlyReading is the volume recorded at the end of a past month. Month 1 is
// the most recent completed month before the current one.
type MonthlyReading struct {
	Month    int     `json:"month"`
	VolumeM3 float64 `json:"volume_m3"`
}

// Window returns the position of the given month inside the readable profile
// string. Month 1 sits nearest the register header at the end of the string;
// older months move towards the start in fixed strides. ok is false for months
// outside 1..ProfileMonths.
func Window(month int) (start, length int, ok bool) {
	if month < 1 || month > ProfileMonths {
		return 0, 0, false
	}
	return firstWindowStart - (month-1)*windowLen, windowLen, true
}

// ExtractMonthlyProfile slices the readable profile register into monthly
// volumes. Windows starting with '8' are left out. A register too short for a
// month's window ends the extraction there without an error. A window that is
// not valid hex leaves only that month out; the returned error joins the
// failures of every such month next to the months that did decode.
func ExtractMonthlyProfile(register string, scale float64) ([]MonthlyReading, error) {
	if !(scale > 0) {
		return nil, fmt.Errorf("%w, got %v", wmbus.ErrInvalidScale, scale)
	}
	readings := make([]MonthlyReading, 0, ProfileMonths)
	var errs []error
	for month := 1; month <= ProfileMonths; month++ {
		start, length, _ := Window(month)
		if start+length > len(register) {
			log.WithField("month", month).Debugf("profile register of %d characters ends before window %d", len(register), start)
			break
		}
		window := register[start : start+length]
		if window[0] == uncommissioned {
			log.WithField("month", month).Debugf("window %s not commissioned", window)
			continue
		}
		raw, err := wmbus.ParseHexUint(window)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ProfileField(month), err))
			continue
		}
		volume, err := wmbus.Scale(raw, scale)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ProfileField(month), err))
			continue
		}
		readings = append(readings, MonthlyReading{Month: month, VolumeM3: volume})
	}
	return readings, errors.Join(errs...)
}

// ProfileField names the output field of a month.
func ProfileField(month int) string {
	return fmt.Sprintf("total_consumption_prev_%d_month", month)
}
