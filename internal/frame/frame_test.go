package frame

import (
	"encoding/hex"
	"testing"
)

const zennerCold = "6644496A4425155518377251413121496A0116360050052F2F0C1355000000026CEC2182046CE1218C0413000000808D0493132C33FE" +
	"000080000080000080000080000080000080000080000080000080000080000080000080000080000080" +
	"02FD1700002F2F"

func TestParseLongTPL(t *testing.T) {
	tg, err := Parse(decodeHex(t, zennerCold))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tg.Manufacturer != 0x6A49 {
		t.Fatalf("manufacturer mismatch: %04X", tg.Manufacturer)
	}
	if tg.CI != 0x72 {
		t.Fatalf("unexpected CI 0x%02X", tg.CI)
	}
	if !tg.TPL.Long {
		t.Fatal("expected long TPL header")
	}
	if got := tg.MeterIDString(); got != "21314151" {
		t.Fatalf("meter id mismatch: %s", got)
	}
	if tg.Media() != 0x16 {
		t.Fatalf("unexpected media 0x%02X", tg.Media())
	}
	if tg.TPL.SecurityMode != 5 || tg.TPL.EncryptedBlocks != 5 {
		t.Fatalf("unexpected security mode %d blocks %d", tg.TPL.SecurityMode, tg.TPL.EncryptedBlocks)
	}
	if tg.PayloadOffset != 23 {
		t.Fatalf("unexpected payload offset %d", tg.PayloadOffset)
	}
	if tg.Payload[0] != 0x2F || tg.Payload[1] != 0x2F {
		t.Fatalf("payload should start with 2F2F, got % X", tg.Payload[:2])
	}
}

func TestParseLengthMismatch(t *testing.T) {
	raw := decodeHex(t, zennerCold)
	if _, err := Parse(append(raw, 0xFF)); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if _, err := Parse(raw[:10]); err == nil {
		t.Fatal("expected short telegram error")
	}
}

func TestAddExplanation(t *testing.T) {
	tg, err := Parse(decodeHex(t, zennerCold))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tg.AddExplanation(10, " (%s: %f)", "b", 2.0)
	tg.AddExplanation(4, " (%s: %f)", "a", 1.0)
	if len(tg.Explanations) != 2 {
		t.Fatalf("expected 2 explanations, got %d", len(tg.Explanations))
	}
	if tg.Explanations[0].Offset != 27 || tg.Explanations[0].Text != " (a: 1.000000)" {
		t.Fatalf("unexpected explanation %+v", tg.Explanations[0])
	}
}

func decodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex decode: %v", err)
	}
	return b
}
