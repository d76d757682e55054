package minowmbus

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/d21d3q/minowmbus/internal/testutil"
)

const minoLogged = "|6644496A1064035514377251345015496A0007EE0050052F2F#0C1359000000026CBE2B82046CA12B8C0413FFFFFFFF8D0493132CFBFE" +
	"FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF02FD1700002F2F|"

func TestDecodeHex(t *testing.T) {
	raw := " |4E44_B409 86868686| "
	data, err := decodeHex(raw)
	require.NoError(t, err)
	require.Len(t, data, 8)

	data, err = decodeHex("0x2f2f")
	require.NoError(t, err)
	require.Equal(t, []byte{0x2F, 0x2F}, data)
}

func TestDecodeHexOddLength(t *testing.T) {
	_, err := decodeHex("ABC")
	require.Error(t, err)
}

func TestAnalyzeLoggedTelegram(t *testing.T) {
	result, err := AnalyzeHexWithOptions(context.Background(), minoLogged, AnalyzeOptions{
		Meters: []Meter{{Name: "Mino", ID: "15503451"}},
	})
	require.NoError(t, err)
	require.Equal(t, "minomess_sva", result.Driver)
	require.Equal(t, "15503451", result.MeterID())

	fs := result.FieldSet()
	name, err := fs.String("name")
	require.NoError(t, err)
	require.Equal(t, "Mino", name)
	total, err := fs.Float("total_m3")
	require.NoError(t, err)
	require.InDelta(t, 0.059, total, 1e-9)
	require.False(t, fs.Has("target_m3"))
	require.Len(t, fs.MonthlyProfile(), 14)
	require.Contains(t, result.String(), "explanations")
}

func TestAnalyzeLastMonthScenario(t *testing.T) {
	hexStr := testutil.LoadHex(t, "minomess/mino_history.hex")
	result, err := AnalyzeHex(context.Background(), hexStr)
	require.NoError(t, err)

	fs := result.FieldSet()
	lastMonth, err := fs.Float("total_consumption_last_month_m3")
	require.NoError(t, err)
	require.Equal(t, 0.089, lastMonth)
	status, err := fs.String("status")
	require.NoError(t, err)
	require.Equal(t, "WAS_REMOVED OVERSIZED", status)
	require.Equal(t, []MonthlyVolume{{Month: 1, VolumeM3: 0.089}, {Month: 2, VolumeM3: 13.33}}, fs.MonthlyProfile())
}

func TestAnalyzeUnknownManufacturer(t *testing.T) {
	frame := "4E44B4098686868613077AF00040052F2F0C1366380000046D27287E2A0F150E00000000C10000D10000E60000FD00000C01002F0100410100540100680100890000A00000B30000002F2F2F2F2F2F"
	result, err := AnalyzeHex(context.Background(), frame)
	require.NoError(t, err)
	require.Equal(t, "unknown", result.Driver)
	require.Nil(t, result.Fields)
}

func TestAnalyzeEncryptedWithoutKey(t *testing.T) {
	hexStr := testutil.LoadHex(t, "minomess/zenner_cold.hex")
	// replace the 2F2F check bytes after the 23 byte header
	encrypted := hexStr[:46] + "0000" + hexStr[50:]
	result, err := AnalyzeHexWithOptions(context.Background(), encrypted, AnalyzeOptions{
		Meters: []Meter{{Name: "Zenner_cold", ID: "21314151"}},
	})
	require.NoError(t, err)
	require.Equal(t, "minomess_sva", result.Driver)
	require.Contains(t, result.Fields["encryption"], "AES key required")
	require.Equal(t, "Zenner_cold", result.Fields["name"])
	require.Equal(t, "21314151", result.Fields["id"])
}

func TestAnalyzeRejectsBadKey(t *testing.T) {
	_, err := AnalyzeHexWithOptions(context.Background(), minoLogged, AnalyzeOptions{KeyHex: "1234"})
	require.Error(t, err)
	_, err = AnalyzeHexWithOptions(context.Background(), minoLogged, AnalyzeOptions{
		Meters: []Meter{{ID: "15503451", KeyHex: strings.Repeat("Q", 32)}},
	})
	require.Error(t, err)
}

func TestAnalyzerConcurrent(t *testing.T) {
	a := NewAnalyzer()
	require.Equal(t, []string{"minomess_sva"}, a.Drivers())
	hexStr := testutil.LoadHex(t, "minomess/zenner_cold.hex")
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := a.Analyze(context.Background(), hexStr, AnalyzeOptions{})
			if err == nil && result.Fields["status"] != "OK" {
				err = assertionError("unexpected status")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

type assertionError string

func (e assertionError) Error() string { return string(e) }

func TestAnalyzeTransportStatusFlags(t *testing.T) {
	hexStr := testutil.LoadHex(t, "minomess/zenner_warm.hex")
	// TPL status byte after CI, id, manufacturer, version, type and access number
	flagged := hexStr[:40] + "08" + hexStr[42:]
	result, err := AnalyzeHex(context.Background(), flagged)
	require.NoError(t, err)

	fs := result.FieldSet()
	permanent, err := fs.Bool("status_permanent_error")
	require.NoError(t, err)
	require.True(t, permanent)
	require.False(t, fs.Has("status_power_low"))
	_, err = fs.Bool("status")
	require.Error(t, err)
}
