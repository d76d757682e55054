package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"gitlab.com/d21d3q/minowmbus/internal/frame"
)

var (
	ErrKeyRequired = errors.New("encrypted telegram: AES key required (use --key)")
	ErrInvalidKey  = errors.New("encrypted telegram: AES key rejected (bad plaintext)")
)

const securityModeAesCbcIV = 5

// Decrypt replaces the payload with its plaintext when the content is
// encrypted. Payloads that already start with the 2F2F check bytes are left
// alone.
func Decrypt(t *frame.Telegram, key []byte) error {
	if !needsDecryption(t) {
		return nil
	}
	if len(key) == 0 {
		return ErrKeyRequired
	}
	return decryptCBC(t, key)
}

func decryptCBC(t *frame.Telegram, key []byte) error {
	required := encryptedPrefixLen(t)
	if required == 0 {
		return ErrInvalidKey
	}
	if required > len(t.Payload) {
		return fmt.Errorf("encrypted section exceeds payload length (%d > %d)", required, len(t.Payload))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("invalid AES key: %w", err)
	}
	plaintext := make([]byte, len(t.Payload))
	copy(plaintext, t.Payload)
	cipher.NewCBCDecrypter(block, BuildIV(t)).CryptBlocks(plaintext[:required], plaintext[:required])
	if t.TPL.Present {
		// mode 5 guarantees the two check bytes
		if plaintext[0] != 0x2F || plaintext[1] != 0x2F {
			return ErrInvalidKey
		}
	} else if !looksLikePlaintext(plaintext) {
		return ErrInvalidKey
	}
	if plaintext[0] == 0x2F && plaintext[1] == 0x2F {
		plaintext = plaintext[2:]
		t.PayloadOffset += 2
	}
	t.Payload = plaintext
	return nil
}

// BuildIV assembles the mode 5 initialisation vector: manufacturer, address,
// version and device type of the meter followed by eight access numbers.
func BuildIV(t *frame.Telegram) []byte {
	iv := make([]byte, aes.BlockSize)
	mfct, id, version, device := t.Manufacturer, t.MeterID, t.Version, t.DeviceType
	if t.TPL.Long {
		mfct, id, version, device = t.TPL.Manufacturer, t.TPL.ID, t.TPL.Version, t.TPL.DeviceType
	}
	iv[0] = byte(mfct)
	iv[1] = byte(mfct >> 8)
	copy(iv[2:6], id[:])
	iv[6] = version
	iv[7] = device
	for i := 8; i < aes.BlockSize; i++ {
		iv[i] = t.AccessNumber
	}
	return iv
}

func looksLikePlaintext(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	first := b[0]
	if first == 0x2f {
		return true
	}
	low := first & 0x0F
	return low <= 0x0D
}

func needsDecryption(t *frame.Telegram) bool {
	if len(t.Payload) < 2 {
		return false
	}
	if t.Payload[0] == 0x2f && t.Payload[1] == 0x2f {
		return false
	}
	if t.TPL.Present {
		return t.TPL.SecurityMode == securityModeAesCbcIV
	}
	return !looksLikePlaintext(t.Payload)
}

func encryptedPrefixLen(t *frame.Telegram) int {
	payloadLen := len(t.Payload)
	if payloadLen < aes.BlockSize {
		return 0
	}
	if t.TPL.Present && t.TPL.EncryptedBlocks > 0 {
		needed := t.TPL.EncryptedBlocks * aes.BlockSize
		if needed > payloadLen {
			needed = payloadLen
		}
		return needed - needed%aes.BlockSize
	}
	return payloadLen - (payloadLen % aes.BlockSize)
}
