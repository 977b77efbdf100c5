package signedurl

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrExpired          = errors.New("signed url expired")
)

// Signer issues and verifies the signature part of time-limited object URLs.
type Signer struct {
	secret []byte
	issuer string
}

type Claims struct {
	Bucket     string `json:"bkt"`
	ObjectPath string `json:"obj"`
	FileName   string `json:"fn,omitempty"`
	MimeType   string `json:"mt,omitempty"`
	DeliveryID string `json:"did,omitempty"`
	jwtlib.RegisteredClaims
}

func New(secret, issuer string) *Signer {
	return &Signer{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (s *Signer) Sign(claims Claims, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwtlib.RegisteredClaims{
		Issuer:    s.issuer,
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		IssuedAt:  jwtlib.NewNumericDate(now),
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Signer) Verify(sig string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(sig, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return s.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(s.issuer),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidSignature
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ObjectPath == "" {
		return nil, ErrInvalidSignature
	}

	return claims, nil
}
