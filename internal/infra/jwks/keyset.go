package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Key is a single JSON Web Key as served by a JWKS endpoint.
type Key struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// KeySet is a collection of public keys indexed by key identifier.
type KeySet struct {
	Keys []Key `json:"keys"`
}

// Lookup returns the key whose kid matches, or false when no key matches.
func (s *KeySet) Lookup(kid string) (*Key, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Keys {
		if s.Keys[i].Kid == kid {
			return &s.Keys[i], true
		}
	}
	return nil, false
}

// RSAPublicKey converts the JWK n/e members into an *rsa.PublicKey.
func (k *Key) RSAPublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
	if k.N == "" {
		return nil, fmt.Errorf("jwk %q missing n parameter", k.Kid)
	}
	if k.E == "" {
		return nil, fmt.Errorf("jwk %q missing e parameter", k.Kid)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode n: %w", err)
	}
	n := new(big.Int).SetBytes(nBytes)

	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode e: %w", err)
	}
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}
