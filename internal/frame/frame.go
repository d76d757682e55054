package frame

import (
	"encoding/binary"
	"fmt"
	"sort"
)

const (
	ciShortTPL = 0x7A
	ciLongTPL  = 0x72

	headerLen   = 11
	longTPLLen  = 12
	shortTPLLen = 4
)

// Telegram represents a decoded Wireless M-Bus frame stripped from transport
// details.
type Telegram struct {
	Raw           []byte
	Length        byte
	Control       byte
	Manufacturer  uint16
	MeterID       [4]byte
	Version       byte
	DeviceType    byte
	CI            byte
	AccessNumber  byte
	Status        byte
	TPL           TPLInfo
	StatusFlags   map[string]bool
	Payload       []byte
	PayloadOffset int
	Explanations  []Explanation
}

// TPLInfo holds the transport layer header. The long header (CI 0x72) repeats
// the meter address, which then takes precedence over the link layer address.
type TPLInfo struct {
	Present         bool
	Long            bool
	ID              [4]byte
	Manufacturer    uint16
	Version         byte
	DeviceType      byte
	AccessField     byte
	StatusField     byte
	Config          uint16
	SecurityMode    byte
	EncryptedBlocks int
}

// Explanation annotates the telegram byte at Offset.
type Explanation struct {
	Offset int    `json:"offset"`
	Text   string `json:"text"`
}

// Parse extracts the link layer header and the short (0x7A) or long (0x72)
// transport layer header.
func Parse(raw []byte) (Telegram, error) {
	if len(raw) < 13 {
		return Telegram{}, fmt.Errorf("telegram too short: %d bytes", len(raw))
	}
	length := raw[0]
	if int(length)+1 != len(raw) {
		return Telegram{}, fmt.Errorf("declared length %d does not match actual length %d", length, len(raw))
	}
	t := Telegram{
		Raw:          raw,
		Length:       length,
		Control:      raw[1],
		Manufacturer: binary.LittleEndian.Uint16(raw[2:4]),
	}
	copy(t.MeterID[:], raw[4:8])
	t.Version = raw[8]
	t.DeviceType = raw[9]
	t.CI = raw[10]
	cursor := 13
	t.AccessNumber = raw[11]
	t.Status = raw[12]

	var tpl TPLInfo
	switch t.CI {
	case ciShortTPL:
		if shortTPLPresent(raw, headerLen) {
			parsed, consumed, err := parseShortTPL(raw, headerLen)
			if err != nil {
				return Telegram{}, err
			}
			tpl = parsed
			cursor = headerLen + consumed
		} else {
			t.AccessNumber = 0
			t.Status = 0
			cursor = headerLen
		}
	case ciLongTPL:
		parsed, consumed, err := parseLongTPL(raw, headerLen)
		if err != nil {
			return Telegram{}, err
		}
		tpl = parsed
		t.AccessNumber = tpl.AccessField
		t.Status = tpl.StatusField
		cursor = headerLen + consumed
	}
	if cursor > len(raw) {
		return Telegram{}, fmt.Errorf("payload offset %d exceeds telegram length %d", cursor, len(raw))
	}
	t.StatusFlags = decodeStatusFlags(t.Status)
	t.TPL = tpl
	t.Payload = raw[cursor:]
	t.PayloadOffset = cursor
	return t, nil
}

// MeterIDString returns the EN 13757 display format (MSB first).
func (t Telegram) MeterIDString() string {
	id := t.MeterID
	if t.TPL.Long {
		id = t.TPL.ID
	}
	return fmt.Sprintf("%02X%02X%02X%02X", id[3], id[2], id[1], id[0])
}

// Media returns the device type of the meter, preferring the long transport
// header over the link layer one (which often names a radio converter).
func (t Telegram) Media() byte {
	if t.TPL.Long {
		return t.TPL.DeviceType
	}
	return t.DeviceType
}

// AddExplanation annotates the payload byte at payloadOffset.
func (t *Telegram) AddExplanation(payloadOffset int, format string, args ...any) {
	t.Explanations = append(t.Explanations, Explanation{
		Offset: t.PayloadOffset + payloadOffset,
		Text:   fmt.Sprintf(format, args...),
	})
	sort.SliceStable(t.Explanations, func(i, j int) bool {
		return t.Explanations[i].Offset < t.Explanations[j].Offset
	})
}

var statusFlagDefs = []struct {
	mask byte
	key  string
}{
	{0x80, "status_manufacturer_alarm"},
	{0x40, "status_manufacturer_flag"},
	{0x20, "status_manufacturer_info"},
	{0x10, "status_temporary_error"},
	{0x08, "status_permanent_error"},
	{0x04, "status_power_low"},
	{0x02, "status_application_error"},
	{0x01, "status_application_busy"},
}

// decodeStatusFlags reads the EN 13757-3 TPL status byte.
func decodeStatusFlags(status byte) map[string]bool {
	flags := make(map[string]bool)
	for _, def := range statusFlagDefs {
		if status&def.mask != 0 {
			flags[def.key] = true
		}
	}
	return flags
}

func parseShortTPL(data []byte, offset int) (TPLInfo, int, error) {
	if len(data) < offset+shortTPLLen {
		return TPLInfo{}, 0, fmt.Errorf("short TPL header truncated")
	}
	tpl := TPLInfo{
		Present:     true,
		AccessField: data[offset],
		StatusField: data[offset+1],
	}
	tpl.Config = binary.LittleEndian.Uint16(data[offset+2 : offset+4])
	applySecurityMode(&tpl)
	return tpl, shortTPLLen, nil
}

func parseLongTPL(data []byte, offset int) (TPLInfo, int, error) {
	if len(data) < offset+longTPLLen {
		return TPLInfo{}, 0, fmt.Errorf("long TPL header truncated")
	}
	tpl := TPLInfo{
		Present:      true,
		Long:         true,
		Manufacturer: binary.LittleEndian.Uint16(data[offset+4 : offset+6]),
		Version:      data[offset+6],
		DeviceType:   data[offset+7],
		AccessField:  data[offset+8],
		StatusField:  data[offset+9],
		Config:       binary.LittleEndian.Uint16(data[offset+10 : offset+12]),
	}
	copy(tpl.ID[:], data[offset:offset+4])
	applySecurityMode(&tpl)
	return tpl, longTPLLen, nil
}

func applySecurityMode(tpl *TPLInfo) {
	tpl.SecurityMode = byte((tpl.Config >> 8) & 0x1F)
	if tpl.SecurityMode == 5 {
		tpl.EncryptedBlocks = int((tpl.Config >> 4) & 0x0F)
	}
}

func shortTPLPresent(data []byte, offset int) bool {
	if len(data) < offset+shortTPLLen {
		return false
	}
	if data[offset] == 0x2F && data[offset+1] == 0x2F {
		return false
	}
	return true
}
