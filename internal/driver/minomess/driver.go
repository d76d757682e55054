// Package minomess decodes Zenner/Mino minomess water meters reporting the
// "minomess_sva" layout: current volume, the month-start target volume and a
// 14 month reverse compact profile.
package minomess

import (
	"context"

	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/minowmbus/internal/driver"
	"gitlab.com/d21d3q/minowmbus/internal/frame"
)

const (
	driverName = "minomess_sva"

	manufacturerZRI = 0x6A49
	ciLongTPL       = 0x72

	deviceTypeWarmWater = 0x06
	deviceTypeWater     = 0x07
	deviceTypeColdWater = 0x16

	defaultTimestamp = "1111-11-11T11:11:11Z"
	dateTimeFormat   = "2006-01-02 15:04"
)

var log = logrus.WithField("driver", driverName)

// Register adds the driver to reg.
func Register(reg *driver.Registry) {
	reg.Register(driver.Detection{
		Manufacturer: manufacturerZRI,
		CI:           ciLongTPL,
		DeviceTypes:  []byte{deviceTypeWater, deviceTypeWarmWater, deviceTypeColdWater},
	}, Driver{})
}

// Driver implements driver.Driver for minomess_sva meters.
type Driver struct{}

var _ driver.PartialReporter = Driver{}

// Name returns the canonical driver name.
func (Driver) Name() string { return driverName }

// PartialFields implements driver.PartialReporter.
func (Driver) PartialFields(t *frame.Telegram) map[string]any {
	fields := map[string]any{
		"_":     "telegram",
		"id":    t.MeterIDString(),
		"meter": driverName,
		"media": mediaFromDeviceType(t.Media()),
	}
	addStatusFlags(fields, t)
	return fields
}

// Process decodes the telegram payload into the output field map.
func (Driver) Process(_ context.Context, t *frame.Telegram) (map[string]any, error) {
	log.WithField("id", t.MeterIDString()).Debug("processing content")
	r, err := Decode(t)
	if err != nil {
		return nil, err
	}
	return r.Fields(t), nil
}

// Fields renders the reading with the wmbusmeters field names.
func (r Reading) Fields(t *frame.Telegram) map[string]any {
	fields := map[string]any{
		"_":         "telegram",
		"id":        t.MeterIDString(),
		"meter":     driverName,
		"media":     mediaFromDeviceType(t.Media()),
		"timestamp": defaultTimestamp,
	}
	setFloat(fields, "total_m3", r.TotalM3)
	setFloat(fields, "total_backward_m3", r.TotalBackwardM3)
	setFloat(fields, "volume_flow_m3h", r.VolumeFlowM3h)
	setFloat(fields, "on_time_h", r.OnTimeH)
	setFloat(fields, "on_time_at_error_h", r.OnTimeAtErrorH)
	setFloat(fields, "operating_time_h", r.OperatingTimeH)
	setFloat(fields, "target_m3", r.TargetM3)
	setFloat(fields, "total_consumption_last_month_m3", r.LastMonthM3)
	setString(fields, "meter_date", r.MeterDate)
	setString(fields, "meter_datetime", r.MeterDateTime)
	setString(fields, "fabrication_no", r.FabricationNo)
	setString(fields, "target_date", r.TargetDate)
	setString(fields, "last_month_date", r.LastMonthDate)
	setString(fields, "status", r.Status)
	for _, m := range r.Months {
		fields[ProfileField(m.Month)+"_m3"] = m.VolumeM3
	}
	addStatusFlags(fields, t)
	return fields
}

// addStatusFlags copies the raised TPL status bits, e.g. status_power_low.
func addStatusFlags(fields map[string]any, t *frame.Telegram) {
	for k, v := range t.StatusFlags {
		fields[k] = v
	}
}

func setFloat(fields map[string]any, key string, v *float64) {
	if v != nil {
		fields[key] = *v
	}
}

func setString(fields map[string]any, key, v string) {
	if v != "" {
		fields[key] = v
	}
}

func mediaFromDeviceType(device byte) string {
	switch device {
	case deviceTypeWater:
		return "water"
	case deviceTypeWarmWater:
		return "warm water"
	case deviceTypeColdWater:
		return "cold water"
	default:
		return "unknown"
	}
}
