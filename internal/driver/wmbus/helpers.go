package wmbus

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidHex reports a character outside 0-9, A-F, a-f.
	ErrInvalidHex = errors.New("invalid hex digit")
	// ErrInvalidScale reports a scale factor that is zero, negative or NaN.
	ErrInvalidScale = errors.New("scale factor must be positive")
)

// maxHexDigits is the widest value that still fits an uint64.
const maxHexDigits = 16

// LengthForDIF returns the data length encoded in the lower nibble of the DIF
// byte. The boolean is false for variable length (0x0D) and special functions,
// which the record parser handles itself.
func LengthForDIF(dif byte) (int, bool) {
	switch dif & 0x0F {
	case 0x00:
		return 0, true
	case 0x01:
		return 1, true
	case 0x02:
		return 2, true
	case 0x03:
		return 3, true
	case 0x04:
		return 4, true
	case 0x05:
		return 4, true // 32 bit real
	case 0x06:
		return 6, true
	case 0x07:
		return 8, true
	case 0x08:
		return 0, true // selection for readout
	case 0x09:
		return 1, true
	case 0x0A:
		return 2, true
	case 0x0B:
		return 3, true
	case 0x0C:
		return 4, true
	case 0x0E:
		return 6, true
	default:
		return 0, false
	}
}

// IsBCD reports whether the DIF data field holds packed BCD digits.
func IsBCD(dif byte) bool {
	switch dif & 0x0F {
	case 0x09, 0x0A, 0x0B, 0x0C, 0x0E:
		return true
	}
	return false
}

// ParseHexUint converts an ASCII hex string (most significant nibble first)
// into an unsigned integer. The empty string yields 0.
func ParseHexUint(s string) (uint64, error) {
	if len(s) > maxHexDigits {
		return 0, fmt.Errorf("hex value %q has %d digits, at most %d fit 64 bits", s, len(s), maxHexDigits)
	}
	var value uint64
	for i := 0; i < len(s); i++ {
		value <<= 4
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			value |= uint64(c - '0')
		case c >= 'a' && c <= 'f':
			value |= uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			value |= uint64(c-'A') + 10
		default:
			return 0, fmt.Errorf("%w %q at position %d", ErrInvalidHex, c, i)
		}
	}
	return value, nil
}

// Scale divides a raw register value by the scale factor of its unit.
func Scale(raw uint64, factor float64) (float64, error) {
	if !(factor > 0) {
		return 0, fmt.Errorf("%w, got %v", ErrInvalidScale, factor)
	}
	return float64(raw) / factor, nil
}

// DecodeBCDLittleEndian converts a BCD payload (little endian byte order) to
// an integer.
func DecodeBCDLittleEndian(b []byte) (uint64, error) {
	var value uint64
	multiplier := uint64(1)
	for _, by := range b {
		low := uint64(by & 0x0F)
		high := uint64((by >> 4) & 0x0F)
		if low > 9 || high > 9 {
			return 0, fmt.Errorf("invalid BCD byte: 0x%02X", by)
		}
		value += low * multiplier
		multiplier *= 10
		value += high * multiplier
		multiplier *= 10
	}
	return value, nil
}

// DecodeTypeGDate renders the two-byte type G date as yyyy-mm-dd. The value is
// formatted even when the fields are out of range, since meters that were
// never set report FFFF.
func DecodeTypeGDate(b []byte) (string, error) {
	if len(b) != 2 {
		return "", fmt.Errorf("type G date requires 2 bytes, got %d", len(b))
	}
	day := int(b[0] & 0x1F)
	month := int(b[1] & 0x0F)
	year := 2000 + int((b[0]&0xE0)>>5|(b[1]&0xF0)>>1)
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), nil
}

// DecodeTypeFDateTime decodes the four-byte Type F timestamp used by many
// Wireless M-Bus meters.
func DecodeTypeFDateTime(b []byte) (time.Time, error) {
	if len(b) != 4 {
		return time.Time{}, fmt.Errorf("type F datetime requires 4 bytes, got %d", len(b))
	}
	minute := int(b[0] & 0x3F)
	hour := int(b[1] & 0x1F)
	day := int(b[2] & 0x1F)
	month := int(b[3] & 0x0F)
	yearBitsHigh := (b[3] >> 4) & 0x0F
	yearBitsLow := (b[2] >> 5) & 0x07
	year := 2000 + int(yearBitsHigh<<3|yearBitsLow)
	if minute > 59 || hour > 23 || day == 0 || day > 31 || month == 0 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid type F datetime encoding: %02X%02X%02X%02X", b[0], b[1], b[2], b[3])
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), nil
}

// DecodeRaw returns the unscaled integer held by a record, reading BCD or
// binary data depending on the DIF.
func DecodeRaw(rec Record) (uint64, error) {
	if IsBCD(rec.DIF) {
		return DecodeBCDLittleEndian(rec.Data)
	}
	switch rec.DIF & 0x0F {
	case 0x01, 0x02, 0x03, 0x04, 0x06, 0x07:
		return ParseHexUint(rec.ReadableHex())
	default:
		return 0, fmt.Errorf("record %s: data field 0x%X is not an integer", rec.Key, rec.DIF&0x0F)
	}
}

// DecodeValue decodes the record and divides it by the scale of its VIF.
func DecodeValue(rec Record) (float64, error) {
	scale, ok := VIFScale(rec.ValueVIF())
	if !ok {
		return 0, fmt.Errorf("record %s: no scale for VIF 0x%02X", rec.Key, rec.ValueVIF())
	}
	if rec.DIF&0x0F == 0x05 {
		if len(rec.Data) != 4 {
			return 0, fmt.Errorf("record %s: real requires 4 bytes", rec.Key)
		}
		bits := uint32(rec.Data[0]) | uint32(rec.Data[1])<<8 | uint32(rec.Data[2])<<16 | uint32(rec.Data[3])<<24
		return float64(math.Float32frombits(bits)) / scale, nil
	}
	raw, err := DecodeRaw(rec)
	if err != nil {
		return 0, fmt.Errorf("record %s: %w", rec.Key, err)
	}
	return Scale(raw, scale)
}
