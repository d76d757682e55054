package minowmbus

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/d21d3q/minowmbus/internal/testutil"
)

func TestMinomessGolden(t *testing.T) {
	fixtures := []string{
		"zenner_cold",
		"zenner_warm",
		"mino",
		"mino_history",
	}
	for _, name := range fixtures {
		t.Run(name, func(t *testing.T) {
			hexStr := testutil.LoadHex(t, "minomess/"+name+".hex")
			result, err := AnalyzeHexWithOptions(context.Background(), hexStr, AnalyzeOptions{})
			require.NoError(t, err)
			require.Equal(t, "minomess_sva", result.Driver)

			var expected map[string]any
			testutil.LoadJSON(t, "minomess/"+name+".json", &expected)
			require.Equal(t, "", diffMaps(expected, result.Fields))
		})
	}
}

func diffMaps(expected, actual map[string]any) string {
	if len(expected) != len(actual) {
		return fmt.Sprintf("len mismatch expected %d actual %d", len(expected), len(actual))
	}
	for k, v := range expected {
		av, ok := actual[k]
		if !ok {
			return fmt.Sprintf("missing key %s", k)
		}
		switch ev := v.(type) {
		case float64:
			avFloat, ok := av.(float64)
			if !ok || math.Abs(ev-avFloat) > 1e-6 {
				return fmt.Sprintf("key %s mismatch expected %v got %v", k, v, av)
			}
		default:
			if fmt.Sprintf("%v", v) != fmt.Sprintf("%v", av) {
				return fmt.Sprintf("key %s mismatch expected %v got %v", k, v, av)
			}
		}
	}
	return ""
}
