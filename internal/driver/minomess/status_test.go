package minomess

import "testing"

func TestDecodeStatus(t *testing.T) {
	cases := []struct {
		word uint16
		want string
	}{
		{0x0000, "OK"},
		{0x8000, "WAS_REMOVED"},
		{0x8001, "WAS_REMOVED OVERSIZED"},
		{0x0100, "OK"},
		{0x0120, "LEAKING"},
		{0x2008, "WAS_LEAKING BACKFLOWING"},
		{0xFFFF, "WAS_REMOVED WAS_TAMPERED WAS_LEAKING TEMPORARY_ERROR PERMANENT_ERROR BATTERY_EOL ABNORMAL_ERROR " +
			"BURSTING REMOVED LEAKING WAS_BACKFLOWING BACKFLOWING WAS_BLOCKED UNDERSIZED OVERSIZED"},
	}
	for _, tc := range cases {
		if got := DecodeStatus(tc.word); got != tc.want {
			t.Fatalf("DecodeStatus(0x%04X) = %q, want %q", tc.word, got, tc.want)
		}
	}
}

func TestStatusTable(t *testing.T) {
	var seen uint16
	prev := uint16(0xFFFF)
	for _, f := range statusFlags {
		if f.mask&(f.mask-1) != 0 {
			t.Fatalf("mask 0x%04X of %s is not a single bit", f.mask, f.name)
		}
		if seen&f.mask != 0 {
			t.Fatalf("mask 0x%04X of %s overlaps", f.mask, f.name)
		}
		if f.mask >= prev {
			t.Fatalf("table not in descending bit order at %s", f.name)
		}
		seen |= f.mask
		prev = f.mask
	}
	if seen != 0xFEFF {
		t.Fatalf("table covers 0x%04X, want every bit but 0x0100", seen)
	}
}

func TestStatusFlagsEmpty(t *testing.T) {
	if names := StatusFlags(0x0100); len(names) != 0 {
		t.Fatalf("reserved bit reported: %v", names)
	}
}
