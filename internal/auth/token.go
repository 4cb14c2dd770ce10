package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/eventos/apiserver/config"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

const (
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims are the identity claims carried by access and refresh tokens.
type Claims struct {
	Email    string `json:"email"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the user data signed into a token.
type Identity struct {
	Subject  string
	Email    string
	UserName string
	Role     string
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenIssuer signs and validates HS256 tokens. Access and refresh tokens
// use different secrets so one can never be accepted as the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

func NewTokenIssuer(cfg config.AuthConfig) (*TokenIssuer, error) {
	access := strings.TrimSpace(cfg.AccessTokenSecret)
	refresh := strings.TrimSpace(cfg.RefreshTokenSecret)
	if access == "" {
		return nil, errors.New("access token secret is required")
	}
	if refresh == "" {
		return nil, errors.New("refresh token secret is required")
	}
	if access == refresh {
		return nil, errors.New("access and refresh token secrets must differ")
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}

	return &TokenIssuer{
		accessSecret:  []byte(access),
		refreshSecret: []byte(refresh),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}, nil
}

func (i *TokenIssuer) IssueAccessToken(id Identity) (string, error) {
	return i.sign(id, i.accessSecret, i.accessTTL)
}

func (i *TokenIssuer) IssueRefreshToken(id Identity) (string, error) {
	return i.sign(id, i.refreshSecret, i.refreshTTL)
}

// IssuePair issues an access token and a refresh token for the same identity.
func (i *TokenIssuer) IssuePair(id Identity) (TokenPair, error) {
	access, err := i.IssueAccessToken(id)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.IssueRefreshToken(id)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *TokenIssuer) ParseAccessToken(token string) (*Claims, error) {
	return i.parse(token, i.accessSecret)
}

func (i *TokenIssuer) ParseRefreshToken(token string) (*Claims, error) {
	return i.parse(token, i.refreshSecret)
}

func (i *TokenIssuer) sign(id Identity, secret []byte, ttl time.Duration) (string, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return "", errors.New("token subject is required")
	}

	now := i.now()
	claims := &Claims{
		Email:    id.Email,
		UserName: id.UserName,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (i *TokenIssuer) parse(tokenString string, secret []byte) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenFromHeader extracts the token from an "Authorization: Bearer <token>" header value.
func TokenFromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
