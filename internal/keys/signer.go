package keys

import (
	"context"
	"crypto"
	"fmt"

	"github.com/project-kessel/rolemapper/internal/service"
)

// KeyID is a unique identifier for a cryptographic key
type KeyID string

// Algorithm is a cryptographic algorithm identifier (e.g., "ES256", "RS256")
type Algorithm string

// Signer hands out the active signing key.
type Signer interface {
	// GetCurrentSigner returns the active key together with its ID and algorithm.
	// The returned signer is only valid for the provided context.
	GetCurrentSigner(ctx context.Context) (signer crypto.Signer, keyID KeyID, alg Algorithm, err error)

	// PublicKeys returns the keys tokens may currently be verified with,
	// including recently rotated-out keys.
	PublicKeys(ctx context.Context) ([]service.PublicKey, error)
}

// KeyType represents the cryptographic key type
type KeyType string

const (
	KeyTypeECP256  KeyType = "EC-P256"
	KeyTypeECP384  KeyType = "EC-P384"
	KeyTypeRSA2048 KeyType = "RSA-2048"
	KeyTypeRSA4096 KeyType = "RSA-4096"
)

// ParseKeyType validates a key type name
func ParseKeyType(s string) (KeyType, error) {
	switch kt := KeyType(s); kt {
	case KeyTypeECP256, KeyTypeECP384, KeyTypeRSA2048, KeyTypeRSA4096:
		return kt, nil
	default:
		return "", fmt.Errorf("unsupported key type %q (supported: EC-P256, EC-P384, RSA-2048, RSA-4096)", s)
	}
}

// DefaultAlgorithm returns the signing algorithm used for a key type
func DefaultAlgorithm(kt KeyType) Algorithm {
	switch kt {
	case KeyTypeECP384:
		return "ES384"
	case KeyTypeRSA2048, KeyTypeRSA4096:
		return "RS256"
	default:
		return "ES256"
	}
}
