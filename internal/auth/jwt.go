package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role claim required for cache maintenance.
const RoleAdmin = "admin"

var ErrForbidden = errors.New("token lacks admin role")

// Claims are the parts of an access token the admin API cares about.
type Claims struct {
	Subject string
	Roles   []string
	Expires time.Time
}

// Verifier checks RS256 access tokens issued by the identity service.
type Verifier struct {
	publicKey *rsa.PublicKey
	issuer    string
}

func NewVerifier(publicPath, issuer string) (*Verifier, error) {
	pubPem, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPem)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return NewVerifierFromKey(pubKey, issuer), nil
}

func NewVerifierFromKey(pub *rsa.PublicKey, issuer string) *Verifier {
	return &Verifier{publicKey: pub, issuer: issuer}
}

// VerifyToken checks signature, expiry and issuer and returns the claims.
func (v *Verifier) VerifyToken(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(5 * time.Second),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims := &Claims{}
	claims.Subject, _ = mc.GetSubject()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.Expires = exp.Time
	}
	if raw, ok := mc["roles"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				claims.Roles = append(claims.Roles, s)
			}
		}
	}
	return claims, nil
}

// VerifyAdmin is VerifyToken plus the admin role check.
func (v *Verifier) VerifyAdmin(tokenStr string) (*Claims, error) {
	claims, err := v.VerifyToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(claims.Roles, RoleAdmin) {
		return nil, ErrForbidden
	}
	return claims, nil
}
