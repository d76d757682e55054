package wmbus

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MeasurementType is encoded in bits 4-5 of the DIF.
type MeasurementType int

const (
	Instantaneous MeasurementType = iota
	Maximum
	Minimum
	AtError
)

// VIFEBackward marks a backward flow volume.
const VIFEBackward = 0x3C

// Record represents a parsed DIF/VIF entry from a telegram payload.
type Record struct {
	Key         string // DIF, DIFE, VIF and VIFE bytes as upper-case hex
	Offset      int    // offset of Data within the payload
	DIF         byte
	DIFE        []byte
	VIF         byte
	VIFE        []byte
	Data        []byte
	Measurement MeasurementType
	Storage     int
	Tariff      int
	Subunit     int
}

// ValueVIF returns the VIF without its extension bit. Codes from the first
// extension table are returned as 0xFDxx, the second as 0xFBxx.
func (r Record) ValueVIF() int {
	switch r.VIF {
	case 0xFD, 0xFB:
		if len(r.VIFE) == 0 {
			return int(r.VIF) << 8
		}
		return int(r.VIF)<<8 | int(r.VIFE[0]&0x7F)
	default:
		return int(r.VIF & 0x7F)
	}
}

// HasVIFE reports whether the combinable extension code is present.
func (r Record) HasVIFE(code byte) bool {
	for _, v := range r.VIFE {
		if v&0x7F == code {
			return true
		}
	}
	return false
}

// ReadableHex returns the data bytes most significant first, the way the value
// is read off the meter: 59 00 00 00 becomes "00000059".
func (r Record) ReadableHex() string {
	buf := make([]byte, len(r.Data))
	for i, b := range r.Data {
		buf[len(r.Data)-1-i] = b
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}

// ParseRecords iterates over the payload and returns the DIF/VIF records until
// manufacturer-specific data is reached (DIF 0x0F/0x1F) or the buffer ends.
func ParseRecords(payload []byte) ([]Record, error) {
	records := make([]Record, 0, 8)
	i := 0
	for i < len(payload) {
		start := i
		dif := payload[i]
		i++
		if dif == 0x2F {
			continue
		}
		if dif == 0x0F || dif == 0x1F {
			break
		}
		rec := Record{
			DIF:         dif,
			Measurement: MeasurementType((dif >> 4) & 0x03),
		}
		storage := int((dif >> 6) & 0x01)
		tariff := 0
		subunit := 0
		difenr := 0

		hasDIFE := (dif & 0x80) != 0
		for hasDIFE {
			if i >= len(payload) {
				return nil, fmt.Errorf("unexpected end of payload while reading DIFE")
			}
			if difenr >= 10 {
				return nil, fmt.Errorf("too many DIFE bytes at offset %d", start)
			}
			dife := payload[i]
			i++
			rec.DIFE = append(rec.DIFE, dife)
			subunit |= int((dife>>6)&0x01) << difenr
			tariff |= int((dife>>4)&0x03) << (difenr * 2)
			storage |= int(dife&0x0F) << (1 + difenr*4)
			hasDIFE = (dife & 0x80) != 0
			difenr++
		}
		if i >= len(payload) {
			return nil, fmt.Errorf("unexpected end of payload before VIF")
		}
		rec.VIF = payload[i]
		i++
		if rec.VIF == 0x7C || rec.VIF == 0xFC {
			return nil, fmt.Errorf("plain text VIF at offset %d not supported", start)
		}
		hasVIFE := (rec.VIF & 0x80) != 0
		for hasVIFE {
			if i >= len(payload) {
				return nil, fmt.Errorf("unexpected end of payload while reading VIFE")
			}
			vife := payload[i]
			i++
			rec.VIFE = append(rec.VIFE, vife)
			hasVIFE = (vife & 0x80) != 0
		}
		rec.Key = strings.ToUpper(hex.EncodeToString(payload[start:i]))

		length, ok := LengthForDIF(dif)
		if !ok {
			if dif&0x0F != 0x0D {
				return nil, fmt.Errorf("unsupported DIF 0x%02X at offset %d", dif, start)
			}
			if i >= len(payload) {
				return nil, fmt.Errorf("payload truncated before LVAR of %s", rec.Key)
			}
			var err error
			length, err = lengthForLVAR(payload[i])
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", rec.Key, err)
			}
			i++
		}
		if i+length > len(payload) {
			return nil, fmt.Errorf("payload truncated for DIF 0x%02X", dif)
		}
		rec.Offset = i
		rec.Data = append([]byte(nil), payload[i:i+length]...)
		i += length

		rec.Storage = storage
		rec.Tariff = tariff
		rec.Subunit = subunit
		records = append(records, rec)
	}
	return records, nil
}

func lengthForLVAR(lvar byte) (int, error) {
	switch {
	case lvar <= 0xBF:
		return int(lvar), nil
	case lvar <= 0xDF:
		return int(lvar & 0x0F), nil // BCD, sign in the high nibble
	case lvar <= 0xEF:
		return int(lvar - 0xE0), nil
	case lvar <= 0xFA:
		return 4 * int(lvar-0xEC), nil
	default:
		return 0, fmt.Errorf("reserved LVAR 0x%02X", lvar)
	}
}

// Matcher selects records the way a driver addresses a data item.
type Matcher struct {
	Key         string // exact DIF/VIF key, overrides the other fields
	Measurement MeasurementType
	Range       VIFRange
	Storage     int
	Tariff      int
	// Exclude skips records carrying this combinable VIFE (0 disables).
	Exclude byte
	// Require only matches records carrying this combinable VIFE (0 disables).
	Require byte
}

func (m Matcher) matches(r Record) bool {
	if m.Key != "" {
		return strings.EqualFold(m.Key, r.Key)
	}
	if r.Measurement != m.Measurement || r.Storage != m.Storage || r.Tariff != m.Tariff {
		return false
	}
	if !m.Range.Contains(r.ValueVIF()) {
		return false
	}
	if m.Exclude != 0 && r.HasVIFE(m.Exclude) {
		return false
	}
	if m.Require != 0 && !r.HasVIFE(m.Require) {
		return false
	}
	return true
}

// Find returns the nr-th (1-based) record selected by the matcher. The boolean
// is false when the telegram does not carry it.
func Find(records []Record, m Matcher, nr int) (Record, bool) {
	seen := 0
	for _, rec := range records {
		if !m.matches(rec) {
			continue
		}
		seen++
		if seen == nr {
			return rec, true
		}
	}
	return Record{}, false
}
