package token

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/astro-web3/permission-filter/internal/infra/jwks"
	"github.com/astro-web3/permission-filter/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingKeyID     = errors.New("token: missing kid header")
	ErrKeyNotFound      = errors.New("token: no key matches kid")
	ErrMalformedToken   = errors.New("token: malformed token")
	ErrSignatureInvalid = errors.New("token: signature invalid")
	ErrTokenExpired     = errors.New("token: token expired")
)

// The key set only carries RSA keys, so RS256 is the single accepted
// algorithm. An attacker-controlled alg header is rejected by the parser.
var validMethods = []string{"RS256"}

// Verifier validates signed identity tokens against a key set source.
// A Verifier holds no per-request state; one instance serves concurrent
// requests.
type Verifier struct {
	source jwks.Source

	insecureAllowUnverified bool
}

type VerifierOption func(*Verifier)

// WithInsecureAllowUnverified makes the verifier fall back to decoding a
// token WITHOUT signature verification when no key matches its kid. This
// exists for test configurations only; every use is logged at warn level.
// Production verifiers must never set it.
func WithInsecureAllowUnverified() VerifierOption {
	return func(v *Verifier) {
		v.insecureAllowUnverified = true
	}
}

func NewVerifier(source jwks.Source, opts ...VerifierOption) *Verifier {
	v := &Verifier{source: source}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the token signature against the key whose kid matches the
// token header and returns the decoded claims. Verification is idempotent:
// the same token against an unchanged key set yields identical claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods(validMethods))

	unverified, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	kid, ok := unverified.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, ErrMissingKeyID
	}

	keySet, err := v.source.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	key, found := keySet.Lookup(kid)
	if !found {
		if v.insecureAllowUnverified {
			return v.decodeUnverified(ctx, unverified, kid)
		}
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
	}

	publicKey, err := key.RSAPublicKey()
	if err != nil {
		return nil, fmt.Errorf("token: unusable key %q: %w", kid, err)
	}

	verified, err := parser.Parse(tokenString, func(*jwt.Token) (any, error) {
		return publicKey, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	mapClaims, ok := verified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformedToken
	}

	return claimsFromMap(mapClaims), nil
}

func (v *Verifier) decodeUnverified(ctx context.Context, unverified *jwt.Token, kid string) (*Claims, error) {
	logger.WarnContext(ctx, "decoding token WITHOUT signature verification (insecure test configuration)",
		slog.String("kid", kid))

	mapClaims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformedToken
	}
	return claimsFromMap(mapClaims), nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	default:
		return fmt.Errorf("token: verification failed: %w", err)
	}
}
