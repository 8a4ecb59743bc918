package vapid

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedVectors() (pub, priv []byte) {
	pub = make([]byte, 65)
	pub[0] = 0x04
	for i := 1; i < 65; i++ {
		pub[i] = byte(i)
	}
	priv = make([]byte, 32)
	for i := range priv {
		priv[i] = byte(200 + i)
	}
	return pub, priv
}

func TestConvertKeyPair_RoundTrip(t *testing.T) {
	pub, priv := fixedVectors()

	pair, err := ConvertKeyPair(EncodeBase64URL(pub), EncodeBase64URL(priv))
	require.NoError(t, err)

	assert.Equal(t, "EC", pair.PublicKey.Kty)
	assert.Equal(t, "P-256", pair.PublicKey.Crv)
	assert.Equal(t, "EC", pair.PrivateKey.Kty)
	assert.Equal(t, "P-256", pair.PrivateKey.Crv)
	assert.Empty(t, pair.PublicKey.D)

	x, err := DecodeBase64URL(pair.PublicKey.X)
	require.NoError(t, err)
	y, err := DecodeBase64URL(pair.PublicKey.Y)
	require.NoError(t, err)
	d, err := DecodeBase64URL(pair.PrivateKey.D)
	require.NoError(t, err)

	assert.Equal(t, pub[1:33], x)
	assert.Equal(t, pub[33:65], y)
	assert.Equal(t, priv, d)
	assert.Equal(t, pair.PublicKey.X, pair.PrivateKey.X)
	assert.Equal(t, pair.PublicKey.Y, pair.PrivateKey.Y)

	rawPub, rawPriv, err := pair.Raw()
	require.NoError(t, err)
	assert.Equal(t, pub, rawPub)
	assert.Equal(t, priv, rawPriv)
}

func TestConvertKeyPair_NoPaddingInOutput(t *testing.T) {
	pub, priv := fixedVectors()

	pair, err := ConvertKeyPair(EncodeBase64URL(pub), EncodeBase64URL(priv))
	require.NoError(t, err)

	for _, field := range []string{pair.PublicKey.X, pair.PublicKey.Y, pair.PrivateKey.D} {
		assert.NotContains(t, field, "=")
		assert.NotContains(t, field, "+")
		assert.NotContains(t, field, "/")
	}
}

func TestConvertKeyPair_AcceptsPaddedAndStandardAlphabet(t *testing.T) {
	pub, priv := fixedVectors()

	fromURL, err := ConvertKeyPair(base64.URLEncoding.EncodeToString(pub), base64.URLEncoding.EncodeToString(priv))
	require.NoError(t, err)
	fromStd, err := ConvertKeyPair(base64.StdEncoding.EncodeToString(pub), base64.StdEncoding.EncodeToString(priv))
	require.NoError(t, err)

	assert.Equal(t, fromURL, fromStd)
}

func TestConvertKeyPair_MalformedPublicKey(t *testing.T) {
	_, priv := fixedVectors()
	wrongLead := make([]byte, 65)
	wrongLead[0] = 0x02

	tests := []struct {
		name    string
		pub     []byte
		wantLen int
	}{
		{name: "compressed point", pub: append([]byte{0x02}, make([]byte, 32)...), wantLen: 33},
		{name: "one byte short", pub: append([]byte{0x04}, make([]byte, 63)...), wantLen: 64},
		{name: "one byte long", pub: append([]byte{0x04}, make([]byte, 65)...), wantLen: 66},
		{name: "wrong leading byte", pub: wrongLead, wantLen: 65},
		{name: "empty", pub: nil, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConvertKeyPair(EncodeBase64URL(tt.pub), EncodeBase64URL(priv))
			require.Error(t, err)

			var malformed *MalformedKeyError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, "public", malformed.Field)
			assert.Equal(t, tt.wantLen, malformed.Length)
			assert.Contains(t, err.Error(), "got "+strconv.Itoa(tt.wantLen)+" bytes")
		})
	}
}

func TestConvertKeyPair_MalformedPrivateKey(t *testing.T) {
	pub, _ := fixedVectors()

	_, err := ConvertKeyPair(EncodeBase64URL(pub), EncodeBase64URL(make([]byte, 31)))

	var malformed *MalformedKeyError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "private", malformed.Field)
	assert.Equal(t, 31, malformed.Length)
}

func TestConvertKeyPair_InvalidBase64(t *testing.T) {
	_, err := ConvertKeyPair("not base64!!", "also not")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode public key")
}

func TestConvertKeyPair_JWKPassThrough(t *testing.T) {
	pub, priv := fixedVectors()
	want, err := ConvertKeyPair(EncodeBase64URL(pub), EncodeBase64URL(priv))
	require.NoError(t, err)

	pubJSON, err := json.Marshal(want.PublicKey)
	require.NoError(t, err)
	privJSON, err := json.Marshal(want.PrivateKey)
	require.NoError(t, err)

	got, err := ConvertKeyPair(string(pubJSON), string(privJSON))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConvertKeyPair_JWKInvalidJSON(t *testing.T) {
	_, err := ConvertKeyPair(`{"kty":`, `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse public JWK")
}
