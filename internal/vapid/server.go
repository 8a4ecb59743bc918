package vapid

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	jose "github.com/go-jose/go-jose/v4"
)

// ErrKeysMissing is returned when either half of the VAPID pair is not configured.
var ErrKeysMissing = errors.New("vapid: VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must both be set")

// ApplicationServer is the imported VAPID identity shared by every send.
// PublicKey and PrivateKey hold the unpadded base64url raw forms the push
// library signs with.
type ApplicationServer struct {
	Subject    string
	Keys       KeyPair
	PublicKey  string
	PrivateKey string

	signingKey *ecdsa.PrivateKey
}

// NewApplicationServer converts and imports the key pair. The private JWK is
// imported through go-jose so an off-curve point or a public half that does
// not belong to the private scalar is rejected here rather than at send time.
func NewApplicationServer(subject, publicKey, privateKey string) (*ApplicationServer, error) {
	if publicKey == "" || privateKey == "" {
		return nil, ErrKeysMissing
	}

	pair, err := ConvertKeyPair(publicKey, privateKey)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(pair.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("vapid: encode private JWK: %w", err)
	}
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("vapid: import private JWK: %w", err)
	}
	signingKey, ok := jwk.Key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("vapid: private JWK is %T, want EC private key", jwk.Key)
	}

	ecdhKey, err := signingKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("vapid: private key: %w", err)
	}
	pub := ecdhKey.PublicKey().Bytes()

	declared, _, err := pair.Raw()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(pub, declared) {
		return nil, errors.New("vapid: public key does not match private key")
	}

	return &ApplicationServer{
		Subject:    subject,
		Keys:       pair,
		PublicKey:  EncodeBase64URL(pub),
		PrivateKey: EncodeBase64URL(ecdhKey.Bytes()),
		signingKey: signingKey,
	}, nil
}

// SigningKey returns the imported ECDSA key.
func (s *ApplicationServer) SigningKey() *ecdsa.PrivateKey {
	return s.signingKey
}

// KeySource yields the configured public and private key strings.
type KeySource func() (publicKey, privateKey string)

// StaticKeys is a KeySource over fixed strings.
func StaticKeys(publicKey, privateKey string) KeySource {
	return func() (string, string) { return publicKey, privateKey }
}

// Provider builds the ApplicationServer at most once per process and hands
// out the cached value afterwards. Callers racing before the first build may
// each construct one; the result is deterministic so the last store wins.
type Provider struct {
	subject string
	keys    KeySource
	log     *slog.Logger

	cached atomic.Pointer[ApplicationServer]
}

func NewProvider(subject string, keys KeySource, log *slog.Logger) *Provider {
	return &Provider{subject: subject, keys: keys, log: log}
}

// Get returns the signing context, or nil when push is unavailable because
// keys are missing or malformed. Failures are not cached so a corrected
// configuration is picked up on the next call.
func (p *Provider) Get() *ApplicationServer {
	if s := p.cached.Load(); s != nil {
		return s
	}

	pub, priv := p.keys()
	s, err := NewApplicationServer(p.subject, pub, priv)
	if err != nil {
		p.log.Error("Push unavailable: could not build VAPID application server", slog.Any("error", err))
		return nil
	}

	p.cached.Store(s)
	p.log.Info("VAPID application server initialized", slog.String("subject", p.subject))
	return s
}

// Reset drops the cached context so the next Get rebuilds it.
func (p *Provider) Reset() {
	p.cached.Store(nil)
}
