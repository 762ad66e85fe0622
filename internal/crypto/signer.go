package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

//nolint:gochecknoglobals // sentinel error
var ErrSignerUnavailable = errors.New("crypto: signer unavailable")

// Signer produces detached signatures over canonical payload bytes.
// Every method may fail: callers are required to degrade to hash-only
// output explicitly rather than assume a signer is present.
type Signer interface {
	// Sign returns a base64-encoded signature over data.
	Sign(data []byte) (string, error)

	// Fingerprint returns a stable hex identifier for the signing key.
	Fingerprint() (string, error)

	// Algorithm returns the signature algorithm name (e.g. "ed25519").
	Algorithm() string

	// PublicKeyPEM returns the PEM-encoded verification key.
	PublicKeyPEM() ([]byte, error)
}

// Ed25519Signer signs with an Ed25519 private key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

// NewEd25519Signer wraps an existing private key.
func NewEd25519Signer(priv ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto.NewEd25519Signer: key size %d: %w", len(priv), ErrSignerUnavailable)
	}
	return &Ed25519Signer{priv: priv}, nil
}

// LoadEd25519Signer reads a PKCS#8 PEM private key from path.
func LoadEd25519Signer(path string) (*Ed25519Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto.LoadEd25519Signer: read key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("crypto.LoadEd25519Signer: %s: no PEM block: %w", path, ErrSignerUnavailable)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto.LoadEd25519Signer: parse key: %w", err)
	}

	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("crypto.LoadEd25519Signer: not an ed25519 key: %w", ErrSignerUnavailable)
	}

	return NewEd25519Signer(priv)
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(s.priv, data)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Fingerprint is the hex SHA-256 of the raw public key bytes.
func (s *Ed25519Signer) Fingerprint() (string, error) {
	pub, ok := s.priv.Public().(ed25519.PublicKey)
	if !ok {
		return "", ErrSignerUnavailable
	}
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Ed25519Signer) Algorithm() string {
	return "ed25519"
}

func (s *Ed25519Signer) PublicKeyPEM() ([]byte, error) {
	pub, ok := s.priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ErrSignerUnavailable
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("crypto.Ed25519Signer.PublicKeyPEM: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// NoSigner is the explicit absent-signer implementation used when no
// signing key is configured. Every call reports unavailability.
type NoSigner struct{}

func (NoSigner) Sign([]byte) (string, error)   { return "", ErrSignerUnavailable }
func (NoSigner) Fingerprint() (string, error)  { return "", ErrSignerUnavailable }
func (NoSigner) Algorithm() string             { return "" }
func (NoSigner) PublicKeyPEM() ([]byte, error) { return nil, ErrSignerUnavailable }

// Probe checks whether a signer can actually produce signatures by signing
// a fixed test payload and fetching the key fingerprint.
func Probe(s Signer) error {
	if s == nil {
		return ErrSignerUnavailable
	}
	if _, err := s.Sign([]byte("probe")); err != nil {
		return fmt.Errorf("crypto.Probe: sign: %w", err)
	}
	if _, err := s.Fingerprint(); err != nil {
		return fmt.Errorf("crypto.Probe: fingerprint: %w", err)
	}
	return nil
}
