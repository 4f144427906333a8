package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded payload of a verified identity token. Tokens are
// verified once per request and discarded after claim extraction; nothing is
// persisted.
type Claims struct {
	Subject   string
	Name      string
	Email     string
	Tenant    string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Raw carries every claim from the token payload, including
	// issuer-defined ones not mapped to a named field.
	Raw map[string]any
}

func claimsFromMap(mapClaims jwt.MapClaims) *Claims {
	claims := &Claims{
		Raw: make(map[string]any, len(mapClaims)),
	}
	for k, v := range mapClaims {
		claims.Raw[k] = v
	}

	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	if name, ok := mapClaims["name"].(string); ok {
		claims.Name = name
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if tenant, ok := mapClaims["tenant"].(string); ok {
		claims.Tenant = tenant
	}

	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	return claims
}
