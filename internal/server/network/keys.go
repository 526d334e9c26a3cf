package network

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"errors"
)

// strkey version bytes for account ids ("G...") and seeds ("S...").
const (
	versionAccountID byte = 6 << 3
	versionSeed      byte = 18 << 3
)

var (
	ErrInvalidStrkey = errors.New("invalid strkey")

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// KeyPair is an ed25519 signing key for a settlement network account.
type KeyPair struct {
	priv ed25519.PrivateKey
}

// RandomKeyPair generates a fresh key pair.
func RandomKeyPair() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{priv: priv}, nil
}

// ParseSeed decodes an "S..." seed.
func ParseSeed(seed string) (*KeyPair, error) {
	raw, err := decodeStrkey(versionSeed, seed)
	if err != nil {
		return nil, err
	}
	return &KeyPair{priv: ed25519.NewKeyFromSeed(raw)}, nil
}

// Address returns the public "G..." account id.
func (k *KeyPair) Address() string {
	return encodeStrkey(versionAccountID, k.priv.Public().(ed25519.PublicKey))
}

// Seed returns the "S..." secret seed.
func (k *KeyPair) Seed() string {
	return encodeStrkey(versionSeed, k.priv.Seed())
}

func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Verify checks sig over msg against a "G..." address.
func Verify(address string, msg, sig []byte) bool {
	pub, err := decodeStrkey(versionAccountID, address)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// ValidAddress reports whether s is a well-formed account id.
func ValidAddress(s string) bool {
	_, err := decodeStrkey(versionAccountID, s)
	return err == nil
}

func encodeStrkey(version byte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+2)
	buf = append(buf, version)
	buf = append(buf, payload...)
	buf = binary.LittleEndian.AppendUint16(buf, crc16(buf))
	return b32.EncodeToString(buf)
}

func decodeStrkey(version byte, s string) ([]byte, error) {
	raw, err := b32.DecodeString(s)
	if err != nil || len(raw) != 1+32+2 {
		return nil, ErrInvalidStrkey
	}
	body, sum := raw[:len(raw)-2], raw[len(raw)-2:]
	if body[0] != version {
		return nil, ErrInvalidStrkey
	}
	if !bytes.Equal(sum, binary.LittleEndian.AppendUint16(nil, crc16(body))) {
		return nil, ErrInvalidStrkey
	}
	return body[1:], nil
}

// crc16 is CRC-16/XMODEM.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
