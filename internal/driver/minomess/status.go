package minomess

import "strings"

// StatusOK is reported when none of the known flags is set.
const StatusOK = "OK"

type statusFlag struct {
	mask uint16
	name string
}

// statusFlags covers info byte A (high byte, past events and errors) and
// byte B (low byte, current state). Bit 0x0100 is unused.
var statusFlags = []statusFlag{
	{0x8000, "WAS_REMOVED"},
	{0x4000, "WAS_TAMPERED"},
	{0x2000, "WAS_LEAKING"},
	{0x1000, "TEMPORARY_ERROR"},
	{0x0800, "PERMANENT_ERROR"},
	{0x0400, "BATTERY_EOL"},
	{0x0200, "ABNORMAL_ERROR"},
	{0x0080, "BURSTING"},
	{0x0040, "REMOVED"},
	{0x0020, "LEAKING"},
	{0x0010, "WAS_BACKFLOWING"},
	{0x0008, "BACKFLOWING"},
	{0x0004, "WAS_BLOCKED"},
	{0x0002, "UNDERSIZED"},
	{0x0001, "OVERSIZED"},
}

// StatusFlags returns the names of the set flags in table order.
func StatusFlags(word uint16) []string {
	var names []string
	for _, f := range statusFlags {
		if word&f.mask != 0 {
			names = append(names, f.name)
		}
	}
	return names
}

// DecodeStatus renders the status word as space separated flag names, or
// StatusOK.
func DecodeStatus(word uint16) string {
	names := StatusFlags(word)
	if len(names) == 0 {
		return StatusOK
	}
	return strings.Join(names, " ")
}
