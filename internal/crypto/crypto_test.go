package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/d21d3q/minowmbus/internal/frame"
)

const (
	header    = "6644496A4425155518377251413121496A011636005005"
	plaintext = "2F2F0C1355000000026CEC2182046CE1218C0413000000808D0493132C33FE" +
		"000080000080000080000080000080000080000080000080000080000080000080000080000080000080" +
		"02FD1700002F2F"
)

func TestDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 16)
	raw := mustHex(t, header+plaintext)
	tg, err := frame.Parse(raw)
	require.NoError(t, err)

	// encrypt the first five blocks in place, as announced by the config word
	enc := append([]byte(nil), raw...)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	start := tg.PayloadOffset
	cipher.NewCBCEncrypter(block, BuildIV(&tg)).CryptBlocks(enc[start:start+80], enc[start:start+80])

	encrypted, err := frame.Parse(enc)
	require.NoError(t, err)
	require.NotEqual(t, byte(0x2F), encrypted.Payload[0])

	require.NoError(t, Decrypt(&encrypted, key))
	require.Equal(t, mustHex(t, plaintext)[2:], encrypted.Payload)
	require.Equal(t, start+2, encrypted.PayloadOffset)
}

func TestDecryptRequiresKey(t *testing.T) {
	raw := mustHex(t, header+plaintext)
	raw[len(header)/2] = 0x00 // destroy the check bytes
	tg, err := frame.Parse(raw)
	require.NoError(t, err)
	require.True(t, errors.Is(Decrypt(&tg, nil), ErrKeyRequired))
}

func TestDecryptWrongKey(t *testing.T) {
	raw := mustHex(t, header+plaintext)
	raw[len(header)/2] = 0x00
	tg, err := frame.Parse(raw)
	require.NoError(t, err)
	require.ErrorIs(t, Decrypt(&tg, bytes.Repeat([]byte{0x22}, 16)), ErrInvalidKey)
}

func TestPlaintextPassesThrough(t *testing.T) {
	tg, err := frame.Parse(mustHex(t, header+plaintext))
	require.NoError(t, err)
	before := append([]byte(nil), tg.Payload...)
	require.NoError(t, Decrypt(&tg, nil))
	require.Equal(t, before, tg.Payload)
}

func TestBuildIVLongHeader(t *testing.T) {
	tg, err := frame.Parse(mustHex(t, header+plaintext))
	require.NoError(t, err)
	require.Equal(t, "496a5141312101163636363636363636", hex.EncodeToString(BuildIV(&tg)))
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}
