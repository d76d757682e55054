package testutil

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// LoadJSON loads a JSON fixture from testdata relative to the repo root.
func LoadJSON(t *testing.T, rel string, v any) {
	t.Helper()
	data := readTestdata(t, rel)
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", rel, err)
	}
}

// LoadHex returns a trimmed hex string from testdata relative path.
func LoadHex(t *testing.T, rel string) string {
	t.Helper()
	data := readTestdata(t, rel)
	return strings.TrimSpace(string(data))
}

// LoadBytes decodes a hex fixture into the telegram bytes.
func LoadBytes(t *testing.T, rel string) []byte {
	t.Helper()
	raw, err := hex.DecodeString(LoadHex(t, rel))
	if err != nil {
		t.Fatalf("hex decode %s: %v", rel, err)
	}
	return raw
}

func readTestdata(t *testing.T, rel string) []byte {
	t.Helper()
	candidates := []string{
		filepath.Join("testdata", rel),
		filepath.Join("..", "testdata", rel),
		filepath.Join("..", "..", "testdata", rel),
		filepath.Join("..", "..", "..", "testdata", rel),
	}
	for _, path := range candidates {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
	}
	t.Fatalf("unable to locate testdata file %s", rel)
	return nil
}
