package apihttp

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionTTL    = 24 * time.Hour
	rememberedTTL = 7 * 24 * time.Hour
	refreshTTL    = 30 * 24 * time.Hour
)

// Tokens is the credential pair handed out on login and registration.
// ExpiresIn is the access token lifetime in seconds.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// TokenIssuer signs HS256 JWTs for authenticated sessions.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), now: time.Now}
}

// Issue signs an access/refresh token pair for u. rememberMe stretches
// the access token lifetime from one day to seven.
func (ti *TokenIssuer) Issue(u *User, rememberMe bool) (Tokens, error) {
	ttl := sessionTTL
	if rememberMe {
		ttl = rememberedTTL
	}
	now := ti.now()

	access, err := ti.sign(jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"typ":   "access",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	})
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := ti.sign(jwt.MapClaims{
		"sub": u.ID,
		"typ": "refresh",
		"iat": now.Unix(),
		"exp": now.Add(refreshTTL).Unix(),
	})
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(ttl / time.Second),
	}, nil
}

func (ti *TokenIssuer) sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
}

// Verify parses and validates an access token, returning its subject
// and email claims.
func (ti *TokenIssuer) Verify(token string) (subject, email string, err error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", jwt.ErrTokenInvalidClaims
	}
	sub, _ := claims["sub"].(string)
	em, _ := claims["email"].(string)
	return sub, em, nil
}
