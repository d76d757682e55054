// Package minowmbus decodes Wireless M-Bus telegrams of Zenner/Mino minomess
// water meters into named fields.
package minowmbus

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gitlab.com/d21d3q/minowmbus/internal/crypto"
	"gitlab.com/d21d3q/minowmbus/internal/driver"
	"gitlab.com/d21d3q/minowmbus/internal/driver/minomess"
	"gitlab.com/d21d3q/minowmbus/internal/frame"
)

// Result captures the outcome of AnalyzeHex.
type Result struct {
	Driver    string
	RawHex    string
	ByteCount int
	Telegram  *frame.Telegram
	Fields    map[string]any
}

// String renders a human-readable representation of the result.
func (r Result) String() string {
	summary := map[string]any{
		"driver":     r.Driver,
		"byte_count": r.ByteCount,
		"raw_hex":    r.RawHex,
	}
	if r.Telegram != nil {
		summary["meter_id"] = r.Telegram.MeterIDString()
		summary["manufacturer"] = fmt.Sprintf("0x%04X", r.Telegram.Manufacturer)
		summary["ci"] = fmt.Sprintf("0x%02X", r.Telegram.CI)
		if len(r.Telegram.Explanations) > 0 {
			summary["explanations"] = r.Telegram.Explanations
		}
	}
	if len(r.Fields) > 0 {
		summary["fields"] = r.Fields
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Sprintf("driver: %s bytes:%d raw:%s (marshal error: %v)", r.Driver, r.ByteCount, r.RawHex, err)
	}
	return string(data)
}

// MeterID returns the display id of the decoded meter, or "" when the frame
// could not be parsed.
func (r Result) MeterID() string {
	if r.Telegram == nil {
		return ""
	}
	return r.Telegram.MeterIDString()
}

// Analyzer selects drivers from its registry. It holds no per-telegram state
// and is safe for concurrent use.
type Analyzer struct {
	registry *driver.Registry
}

// NewAnalyzer returns an analyzer with the built-in drivers registered.
func NewAnalyzer() *Analyzer {
	reg := driver.NewRegistry()
	minomess.Register(reg)
	return NewAnalyzerWithRegistry(reg)
}

// NewAnalyzerWithRegistry returns an analyzer using reg.
func NewAnalyzerWithRegistry(reg *driver.Registry) *Analyzer {
	return &Analyzer{registry: reg}
}

// Drivers lists the names of the registered drivers.
func (a *Analyzer) Drivers() []string {
	return a.registry.Names()
}

// AnalyzeHex parses the frame, selects a driver, and returns decoded data.
func AnalyzeHex(ctx context.Context, raw string) (Result, error) {
	return NewAnalyzer().Analyze(ctx, raw, AnalyzeOptions{})
}

// AnalyzeHexWithOptions parses the frame with custom options.
func AnalyzeHexWithOptions(ctx context.Context, raw string, opts AnalyzeOptions) (Result, error) {
	return NewAnalyzer().Analyze(ctx, raw, opts)
}

// Analyze decodes one hex telegram. Telegrams without a matching driver are
// returned with Driver "unknown" and no fields; driver failures degrade to the
// driver's partial fields with an "error" entry.
func (a *Analyzer) Analyze(ctx context.Context, raw string, opts AnalyzeOptions) (Result, error) {
	ctx, resolved, err := opts.toInternal(ctx)
	if err != nil {
		return Result{}, err
	}
	data, err := decodeHex(raw)
	if err != nil {
		return Result{}, err
	}
	telegram, err := frame.Parse(data)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Driver:    "unknown",
		RawHex:    strings.ToUpper(stripWhitespace(raw)),
		ByteCount: len(data),
		Telegram:  &telegram,
	}

	drv, err := a.registry.Lookup(&telegram)
	if err != nil {
		return result, nil
	}
	meterID := telegram.MeterIDString()
	name := resolved.names[meterID]
	if err := crypto.Decrypt(&telegram, resolved.keys.Resolve(ctx, meterID)); err != nil {
		if errors.Is(err, crypto.ErrKeyRequired) || errors.Is(err, crypto.ErrInvalidKey) {
			if reporter, ok := drv.(driver.PartialReporter); ok {
				fields := reporter.PartialFields(&telegram)
				fields["encryption"] = err.Error()
				setName(fields, name)
				result.Driver = drv.Name()
				result.Fields = fields
				return result, nil
			}
		}
		return result, err
	}

	fields, err := drv.Process(ctx, &telegram)
	if err != nil {
		if reporter, ok := drv.(driver.PartialReporter); ok {
			partial := reporter.PartialFields(&telegram)
			partial["error"] = err.Error()
			setName(partial, name)
			result.Driver = drv.Name()
			result.Fields = partial
			return result, nil
		}
		return result, err
	}
	setName(fields, name)
	result.Driver = drv.Name()
	result.Fields = fields
	return result, nil
}

func setName(fields map[string]any, name string) {
	if name != "" {
		fields["name"] = name
	}
}

func decodeHex(input string) ([]byte, error) {
	clean := strings.ToUpper(stripWhitespace(input))
	clean = strings.TrimPrefix(clean, "0X")
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex telegram must contain an even number of digits, got %d", len(clean))
	}
	decoded := make([]byte, len(clean)/2)
	if _, err := hex.Decode(decoded, []byte(clean)); err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return decoded, nil
}

// stripWhitespace also drops the |, _ and # separators used in logged
// telegrams.
func stripWhitespace(s string) string {
	builder := strings.Builder{}
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '|' || r == '_' || r == '#' {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
