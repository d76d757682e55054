package wmbus

import "math"

// VIFRange groups value information codes that describe the same quantity.
type VIFRange int

const (
	RangeAny VIFRange = iota
	RangeVolume
	RangeVolumeFlow
	RangeDate
	RangeDateTime
	RangeOnTime
	RangeOperatingTime
	RangeFabricationNo
	RangeErrorFlags
)

var rangeNames = map[VIFRange]string{
	RangeAny:           "Any",
	RangeVolume:        "Volume",
	RangeVolumeFlow:    "VolumeFlow",
	RangeDate:          "Date",
	RangeDateTime:      "DateTime",
	RangeOnTime:        "OnTime",
	RangeOperatingTime: "OperatingTime",
	RangeFabricationNo: "FabricationNo",
	RangeErrorFlags:    "ErrorFlags",
}

func (r VIFRange) String() string {
	if name, ok := rangeNames[r]; ok {
		return name
	}
	return "Unknown"
}

// Contains reports whether the value VIF (see Record.ValueVIF) belongs to r.
func (r VIFRange) Contains(vif int) bool {
	switch r {
	case RangeAny:
		return true
	case RangeVolume:
		return vif >= 0x10 && vif <= 0x17
	case RangeVolumeFlow:
		return vif >= 0x38 && vif <= 0x3F
	case RangeDate:
		return vif == 0x6C
	case RangeDateTime:
		return vif == 0x6D
	case RangeOnTime:
		return vif >= 0x20 && vif <= 0x23
	case RangeOperatingTime:
		return vif >= 0x24 && vif <= 0x27
	case RangeFabricationNo:
		return vif == 0x78
	case RangeErrorFlags:
		return vif == 0xFD17
	default:
		return false
	}
}

// VIFScale returns the divisor that converts a raw value into the default
// unit of its quantity: m3, m3/h or hours.
func VIFScale(vif int) (float64, bool) {
	switch {
	case RangeVolume.Contains(vif):
		return math.Pow10(6 - (vif & 0x07)), true
	case RangeVolumeFlow.Contains(vif):
		return math.Pow10(6 - (vif & 0x07)), true
	case RangeOnTime.Contains(vif), RangeOperatingTime.Contains(vif):
		switch vif & 0x03 {
		case 0x00:
			return 3600, true
		case 0x01:
			return 60, true
		case 0x02:
			return 1, true
		default:
			return 1.0 / 24, true
		}
	default:
		return 0, false
	}
}
