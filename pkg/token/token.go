// Package token issues and verifies RS256 signed access and refresh tokens.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// ErrInvalidToken is returned for every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

// Claims is the token payload. Name, Email and Role are only set on access
// tokens and reflect the credential at issuance time.
type Claims struct {
	Type  Kind   `json:"type"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Options struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Now        func() time.Time
}

// Service holds read-only key material and is safe for concurrent use.
type Service struct {
	priv       *rsa.PrivateKey
	pub        *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

func NewService(o Options) (*Service, error) {
	if o.PrivateKey == nil {
		return nil, errors.New("token: private key is required")
	}
	if o.PublicKey == nil {
		o.PublicKey = &o.PrivateKey.PublicKey
	}
	if o.AccessTTL <= 0 || o.RefreshTTL <= 0 {
		return nil, errors.New("token: ttls must be positive")
	}
	if o.AccessTTL >= o.RefreshTTL {
		return nil, fmt.Errorf("token: access ttl %s must be shorter than refresh ttl %s", o.AccessTTL, o.RefreshTTL)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Service{
		priv:       o.PrivateKey,
		pub:        o.PublicKey,
		accessTTL:  o.AccessTTL,
		refreshTTL: o.RefreshTTL,
		issuer:     o.Issuer,
		now:        o.Now,
	}, nil
}

// NewVerifier builds a service that can only verify tokens.
func NewVerifier(pub *rsa.PublicKey, issuer string) *Service {
	return &Service{pub: pub, issuer: issuer, now: time.Now}
}

// Issue signs claims as a token of the given kind and returns it with its
// expiry.
func (s *Service) Issue(c Claims, kind Kind) (string, time.Time, error) {
	if s.priv == nil {
		return "", time.Time{}, errors.New("token: service cannot sign")
	}
	ttl := s.accessTTL
	if kind == Refresh {
		ttl = s.refreshTTL
		c.Name, c.Email, c.Role = "", "", ""
	}
	now := s.now()
	exp := now.Add(ttl)
	c.Type = kind
	c.Issuer = s.issuer
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(exp)
	c.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, c).SignedString(s.priv)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, exp, nil
}

// Verify checks signature, expiry and that the token is of kind expected.
func (s *Service) Verify(raw string, expected Kind) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.pub, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != expected || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// LoadKeyPair reads PEM encoded RSA keys from disk.
func LoadKeyPair(privatePath, publicPath string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, nil, oops.Code("TOKEN_KEY_READ_FAILED").With("path", privatePath).Wrap(err)
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, nil, oops.Code("TOKEN_KEY_INVALID").With("path", privatePath).Wrap(err)
	}
	if publicPath == "" {
		return priv, &priv.PublicKey, nil
	}
	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, nil, oops.Code("TOKEN_KEY_READ_FAILED").With("path", publicPath).Wrap(err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, nil, oops.Code("TOKEN_KEY_INVALID").With("path", publicPath).Wrap(err)
	}
	return priv, pub, nil
}
