package minowmbus

import (
	"context"
	"strings"

	internalopts "gitlab.com/d21d3q/minowmbus/internal/options"
)

// Meter describes a known meter: its display id, a name copied into the
// output and an optional AES key.
type Meter struct {
	Name   string
	ID     string
	KeyHex string
}

// AnalyzeOptions configures parsing. KeyHex applies to every meter without a
// key of its own.
type AnalyzeOptions struct {
	KeyHex string
	Meters []Meter
}

type resolvedOptions struct {
	keys  internalopts.Keyring
	names map[string]string
}

func (opts AnalyzeOptions) toInternal(ctx context.Context) (context.Context, resolvedOptions, error) {
	key, err := internalopts.ParseKeyHex(opts.KeyHex)
	if err != nil {
		return ctx, resolvedOptions{}, err
	}
	ctx = internalopts.WithSecurityKey(ctx, key)

	hexKeys := make(map[string]string, len(opts.Meters))
	names := make(map[string]string, len(opts.Meters))
	for _, m := range opts.Meters {
		id := strings.ToUpper(m.ID)
		hexKeys[id] = m.KeyHex
		if m.Name != "" {
			names[id] = m.Name
		}
	}
	keys, err := internalopts.ParseKeyring(hexKeys)
	if err != nil {
		return ctx, resolvedOptions{}, err
	}
	return ctx, resolvedOptions{keys: keys, names: names}, nil
}
