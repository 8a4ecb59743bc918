// Package vapid turns VAPID key material into the signing context used for
// every web push send.
package vapid

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	publicKeyLen  = 65
	privateKeyLen = 32
	uncompressed  = 0x04
)

// JWK is the subset of a JSON Web Key needed for a P-256 VAPID pair.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	D   string `json:"d,omitempty"`
}

type KeyPair struct {
	PublicKey  JWK `json:"publicKey"`
	PrivateKey JWK `json:"privateKey"`
}

// MalformedKeyError reports key material with the wrong shape.
type MalformedKeyError struct {
	Field       string
	Length      int
	LeadingByte byte
}

func (e *MalformedKeyError) Error() string {
	if e.Field == "public" {
		return fmt.Sprintf("vapid: malformed public key: expected %d bytes starting with 0x04, got %d bytes (leading byte 0x%02x)",
			publicKeyLen, e.Length, e.LeadingByte)
	}
	return fmt.Sprintf("vapid: malformed %s key: expected %d bytes, got %d bytes", e.Field, privateKeyLen, e.Length)
}

// ConvertKeyPair converts a base64url uncompressed P-256 point and a
// base64url 32-byte scalar into a JWK pair. Input whose public key already is
// JWK JSON (leading '{') is parsed and returned as stored.
func ConvertKeyPair(publicKey, privateKey string) (KeyPair, error) {
	publicKey = strings.TrimSpace(publicKey)
	privateKey = strings.TrimSpace(privateKey)

	if strings.HasPrefix(publicKey, "{") {
		return parseJWKPair(publicKey, privateKey)
	}

	pub, err := DecodeBase64URL(publicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("vapid: decode public key: %w", err)
	}
	if len(pub) != publicKeyLen || pub[0] != uncompressed {
		e := &MalformedKeyError{Field: "public", Length: len(pub)}
		if len(pub) > 0 {
			e.LeadingByte = pub[0]
		}
		return KeyPair{}, e
	}

	priv, err := DecodeBase64URL(privateKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("vapid: decode private key: %w", err)
	}
	if len(priv) != privateKeyLen {
		return KeyPair{}, &MalformedKeyError{Field: "private", Length: len(priv)}
	}

	x := EncodeBase64URL(pub[1:33])
	y := EncodeBase64URL(pub[33:65])

	return KeyPair{
		PublicKey:  JWK{Kty: "EC", Crv: "P-256", X: x, Y: y},
		PrivateKey: JWK{Kty: "EC", Crv: "P-256", X: x, Y: y, D: EncodeBase64URL(priv)},
	}, nil
}

func parseJWKPair(publicKey, privateKey string) (KeyPair, error) {
	var pair KeyPair
	if err := json.Unmarshal([]byte(publicKey), &pair.PublicKey); err != nil {
		return KeyPair{}, fmt.Errorf("vapid: parse public JWK: %w", err)
	}
	if err := json.Unmarshal([]byte(privateKey), &pair.PrivateKey); err != nil {
		return KeyPair{}, fmt.Errorf("vapid: parse private JWK: %w", err)
	}
	return pair, nil
}

// Raw returns the uncompressed public point and the private scalar.
func (k KeyPair) Raw() (pub, priv []byte, err error) {
	x, err := DecodeBase64URL(k.PublicKey.X)
	if err != nil {
		return nil, nil, fmt.Errorf("vapid: decode x: %w", err)
	}
	y, err := DecodeBase64URL(k.PublicKey.Y)
	if err != nil {
		return nil, nil, fmt.Errorf("vapid: decode y: %w", err)
	}
	priv, err = DecodeBase64URL(k.PrivateKey.D)
	if err != nil {
		return nil, nil, fmt.Errorf("vapid: decode d: %w", err)
	}
	pub = make([]byte, 0, publicKeyLen)
	pub = append(pub, uncompressed)
	pub = append(pub, x...)
	pub = append(pub, y...)
	return pub, priv, nil
}

// DecodeBase64URL decodes base64url with or without padding by mapping it to
// the standard alphabet first.
func DecodeBase64URL(s string) ([]byte, error) {
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return base64.StdEncoding.DecodeString(s)
}

func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
