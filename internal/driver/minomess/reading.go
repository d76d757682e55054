package minomess

import (
	"fmt"

	"gitlab.com/d21d3q/minowmbus/internal/driver/wmbus"
	"gitlab.com/d21d3q/minowmbus/internal/frame"
)

const (
	storageCurrent   = 0
	storageTarget    = 1
	storageLastMonth = 8

	statusKey = "02FD17"
)

// Reading is the decoded content of one telegram. Pointer fields are nil and
// strings empty when the telegram does not carry the value or it could not be
// decoded; FieldErrors lists the latter.
type Reading struct {
	MeterDate       string
	MeterDateTime   string
	FabricationNo   string
	TotalM3         *float64
	TotalBackwardM3 *float64
	VolumeFlowM3h   *float64
	OnTimeH         *float64
	OnTimeAtErrorH  *float64
	OperatingTimeH  *float64
	TargetM3        *float64
	TargetDate      string
	LastMonthM3     *float64
	LastMonthDate   string
	Months          []MonthlyReading
	Status          string
	FieldErrors     []error
}

// Decode parses the payload records of t and decodes every known field. Only
// a malformed record structure is returned as an error; a field that fails to
// decode is left out and recorded in FieldErrors.
func Decode(t *frame.Telegram) (Reading, error) {
	records, err := wmbus.ParseRecords(t.Payload)
	if err != nil {
		return Reading{}, fmt.Errorf("minomess_sva: %w", err)
	}
	d := decoder{t: t, records: records}
	r := &d.out

	r.TotalM3 = d.number("total", current(wmbus.RangeVolume, wmbus.VIFEBackward, 0))
	r.TotalBackwardM3 = d.number("total_backward", current(wmbus.RangeVolume, 0, wmbus.VIFEBackward))
	r.VolumeFlowM3h = d.number("volume_flow", current(wmbus.RangeVolumeFlow, 0, 0))
	r.OnTimeH = d.number("on_time", current(wmbus.RangeOnTime, 0, 0))
	r.OnTimeAtErrorH = d.number("on_time_at_error", wmbus.Matcher{Measurement: wmbus.AtError, Range: wmbus.RangeOnTime})
	r.OperatingTimeH = d.number("operating_time", current(wmbus.RangeOperatingTime, 0, 0))
	r.MeterDate = d.date("meter_date", current(wmbus.RangeDate, 0, 0))
	r.MeterDateTime = d.dateTime("meter_datetime", current(wmbus.RangeDateTime, 0, 0))
	r.FabricationNo = d.fabricationNo()

	r.TargetM3 = d.number("target", stored(wmbus.RangeVolume, storageLastMonth))
	if r.TargetM3 == nil {
		r.TargetM3 = d.number("target", stored(wmbus.RangeVolume, storageTarget))
	}
	r.TargetDate = d.date("target_date", stored(wmbus.RangeDate, storageLastMonth))
	if r.TargetDate == "" {
		r.TargetDate = d.date("target_date", stored(wmbus.RangeDate, storageTarget))
	}
	r.LastMonthDate = d.date("last_month_date", stored(wmbus.RangeDate, storageLastMonth))
	r.LastMonthM3 = d.lastMonth()
	r.Months = d.profile()
	r.Status = d.status()
	return d.out, nil
}

func current(rng wmbus.VIFRange, exclude, require byte) wmbus.Matcher {
	return wmbus.Matcher{
		Measurement: wmbus.Instantaneous,
		Range:       rng,
		Storage:     storageCurrent,
		Exclude:     exclude,
		Require:     require,
	}
}

func stored(rng wmbus.VIFRange, storage int) wmbus.Matcher {
	return wmbus.Matcher{Measurement: wmbus.Instantaneous, Range: rng, Storage: storage}
}

type decoder struct {
	t       *frame.Telegram
	records []wmbus.Record
	out     Reading
}

func (d *decoder) fail(field string, rec wmbus.Record, err error) {
	log.WithError(err).WithField("field", field).Warnf("skipping %s at offset %d", rec.Key, rec.Offset)
	d.out.FieldErrors = append(d.out.FieldErrors, fmt.Errorf("%s: %w", field, err))
}

func (d *decoder) number(field string, m wmbus.Matcher) *float64 {
	rec, ok := wmbus.Find(d.records, m, 1)
	if !ok {
		return nil
	}
	value, err := wmbus.DecodeValue(rec)
	if err != nil {
		d.fail(field, rec, err)
		return nil
	}
	d.t.AddExplanation(rec.Offset, " (%s: %f)", field, value)
	return &value
}

func (d *decoder) date(field string, m wmbus.Matcher) string {
	rec, ok := wmbus.Find(d.records, m, 1)
	if !ok {
		return ""
	}
	date, err := wmbus.DecodeTypeGDate(rec.Data)
	if err != nil {
		d.fail(field, rec, err)
		return ""
	}
	d.t.AddExplanation(rec.Offset, " (%s: %s)", field, date)
	return date
}

func (d *decoder) dateTime(field string, m wmbus.Matcher) string {
	rec, ok := wmbus.Find(d.records, m, 1)
	if !ok {
		return ""
	}
	ts, err := wmbus.DecodeTypeFDateTime(rec.Data)
	if err != nil {
		d.fail(field, rec, err)
		return ""
	}
	value := ts.Format(dateTimeFormat)
	d.t.AddExplanation(rec.Offset, " (%s: %s)", field, value)
	return value
}

func (d *decoder) fabricationNo() string {
	rec, ok := wmbus.Find(d.records, current(wmbus.RangeFabricationNo, 0, 0), 1)
	if !ok {
		return ""
	}
	digits, err := wmbus.DecodeRaw(rec)
	if err != nil {
		d.fail("fabrication_no", rec, err)
		return ""
	}
	value := fmt.Sprintf("%0*d", 2*len(rec.Data), digits)
	d.t.AddExplanation(rec.Offset, " (fabrication_no: %s)", value)
	return value
}

// lastMonth reads the first storage 8 volume as a plain hex number, the way
// the meter documents it, instead of the BCD coding its DIF announces.
func (d *decoder) lastMonth() *float64 {
	const field = "total_consumption_last_month"
	rec, ok := wmbus.Find(d.records, stored(wmbus.RangeVolume, storageLastMonth), 1)
	if !ok {
		return nil
	}
	scale, _ := wmbus.VIFScale(rec.ValueVIF())
	raw, err := wmbus.ParseHexUint(rec.ReadableHex())
	if err != nil {
		d.fail(field, rec, err)
		return nil
	}
	value, err := wmbus.Scale(raw, scale)
	if err != nil {
		d.fail(field, rec, err)
		return nil
	}
	log.Debugf("%s: raw %d scale %g value %g", field, raw, scale, value)
	d.t.AddExplanation(rec.Offset, " (%s: %f)", field, value)
	return &value
}

// profile decodes the reverse compact profile, the second storage 8 volume.
func (d *decoder) profile() []MonthlyReading {
	rec, ok := wmbus.Find(d.records, stored(wmbus.RangeVolume, storageLastMonth), 2)
	if !ok {
		return nil
	}
	scale, _ := wmbus.VIFScale(rec.ValueVIF())
	months, err := ExtractMonthlyProfile(rec.ReadableHex(), scale)
	if err != nil {
		d.fail("total_consumption_prev_month", rec, err)
	}
	for _, m := range months {
		d.t.AddExplanation(rec.Offset, " (%s: %f)", ProfileField(m.Month), m.VolumeM3)
	}
	return months
}

func (d *decoder) status() string {
	rec, ok := wmbus.Find(d.records, wmbus.Matcher{Key: statusKey}, 1)
	if !ok {
		return ""
	}
	raw, err := wmbus.ParseHexUint(rec.ReadableHex())
	if err == nil && raw > 0xFFFF {
		err = fmt.Errorf("status word 0x%X wider than 16 bits", raw)
	}
	if err != nil {
		d.fail("status", rec, err)
		return ""
	}
	status := DecodeStatus(uint16(raw))
	d.t.AddExplanation(rec.Offset, " (status: %s)", status)
	return status
}
