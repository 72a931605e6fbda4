package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"os"
	"sync"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/project-kessel/rolemapper/internal/service"
)

// memoryKey represents a private key for signing
type memoryKey struct {
	ID        KeyID
	Algorithm Algorithm
	Signer    crypto.Signer
}

// MemorySigner keeps its signing keys in process memory.
// Rotating keeps the previous key published so tokens it signed still verify.
type MemorySigner struct {
	mu        sync.RWMutex
	keyType   KeyType
	algorithm Algorithm
	current   *memoryKey
	previous  *memoryKey
}

// NewMemorySigner creates a signer with a freshly generated key.
// An empty algorithm selects the default for the key type.
func NewMemorySigner(keyType KeyType, algorithm Algorithm) (*MemorySigner, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm(keyType)
	}

	s := &MemorySigner{
		keyType:   keyType,
		algorithm: algorithm,
	}
	if err := s.Rotate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemorySignerFromPEM creates a signer around the private key in a PEM file.
// The algorithm is derived from the key. Such a signer cannot rotate.
func NewMemorySignerFromPEM(path string) (*MemorySigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	parsed, err := jwk.ParseKey(data, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %s: %w", path, err)
	}

	var raw any
	if err := jwk.Export(parsed, &raw); err != nil {
		return nil, fmt.Errorf("failed to export key: %w", err)
	}

	signer, ok := raw.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("key file %s does not hold a private key", path)
	}

	var alg Algorithm
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			alg = "ES256"
		case elliptic.P384():
			alg = "ES384"
		default:
			return nil, fmt.Errorf("unsupported EC curve: %s", k.Curve.Params().Name)
		}
	case *rsa.PrivateKey:
		alg = "RS256"
	default:
		return nil, fmt.Errorf("unsupported private key type: %T", signer)
	}

	kid, err := thumbprint(signer.Public())
	if err != nil {
		return nil, err
	}

	return &MemorySigner{
		algorithm: alg,
		current:   &memoryKey{ID: kid, Algorithm: alg, Signer: signer},
	}, nil
}

// Rotate generates a new active key and demotes the current one to previous
func (s *MemorySigner) Rotate(ctx context.Context) error {
	if s.keyType == "" {
		return fmt.Errorf("signer loaded from a key file cannot rotate")
	}

	var signer crypto.Signer
	var err error

	switch s.keyType {
	case KeyTypeECP256:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case KeyTypeECP384:
		signer, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case KeyTypeRSA2048:
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
	case KeyTypeRSA4096:
		signer, err = rsa.GenerateKey(rand.Reader, 4096)
	default:
		return fmt.Errorf("unsupported key type: %s", s.keyType)
	}
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	kid, err := thumbprint(signer.Public())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous = s.current
	s.current = &memoryKey{ID: kid, Algorithm: s.algorithm, Signer: signer}
	return nil
}

// GetCurrentSigner implements Signer
func (s *MemorySigner) GetCurrentSigner(ctx context.Context) (crypto.Signer, KeyID, Algorithm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, "", "", fmt.Errorf("no active signing key")
	}
	return s.current.Signer, s.current.ID, s.current.Algorithm, nil
}

// PublicKeys implements Signer
func (s *MemorySigner) PublicKeys(ctx context.Context) ([]service.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []service.PublicKey
	for _, k := range []*memoryKey{s.current, s.previous} {
		if k == nil {
			continue
		}
		out = append(out, service.PublicKey{
			KeyID:     string(k.ID),
			Algorithm: string(k.Algorithm),
			Key:       k.Signer.Public(),
			Use:       "sig",
		})
	}
	return out, nil
}

// thumbprint derives the RFC 7638 key ID of a public key
func thumbprint(pub crypto.PublicKey) (KeyID, error) {
	key, err := jwk.Import(pub)
	if err != nil {
		return "", fmt.Errorf("failed to import public key: %w", err)
	}
	sum, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return KeyID(base64.RawURLEncoding.EncodeToString(sum)), nil
}
