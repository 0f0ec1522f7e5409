package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

const defaultTTL = 7 * 24 * time.Hour

// Claims crosses the chat and web surfaces as a bearer credential.
// Claim keys are single letters: the serialized token is embedded in
// rich-menu action payloads with a ~300 character ceiling.
type Claims struct {
	UserId      string `json:"u"`
	MemberId    int64  `json:"m"`
	AccessToken string `json:"t"`
	MemberName  string `json:"n"`

	jwt.RegisteredClaims
}

type Config struct {
	Secret string `validate:"required"`
	TTL    time.Duration
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

type Codec struct {
	config Config
}

func NewCodec(config Config) (*Codec, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.TTL <= 0 {
		config.TTL = defaultTTL
	}

	return &Codec{
		config: config,
	}, nil
}

func (c *Codec) Mint(userId string, memberId int64, accessToken, memberName string) (string, error) {
	now := time.Now()

	claims := Claims{
		UserId:      userId,
		MemberId:    memberId,
		AccessToken: accessToken,
		MemberName:  memberName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.TTL)),
		},
	}

	signed, err := jwt.
		NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(c.config.Secret))
	if err != nil {
		return "", fmt.Errorf("jwt.SignedString: %w", err)
	}

	return signed, nil
}

// Verify reports the token's claims, or ErrInvalidToken when the
// signature is wrong, the payload is malformed, or the token expired.
func (c *Codec) Verify(value string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(value, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
		}
		return []byte(c.config.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: jwt.ParseWithClaims: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyFor additionally rejects tokens whose subject differs from
// the chat user they are presented for.
func (c *Codec) VerifyFor(value, userId string) (*Claims, error) {
	claims, err := c.Verify(value)
	if err != nil {
		return nil, err
	}

	if claims.UserId != userId {
		return nil, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}

	return claims, nil
}

// Refresh re-mints a currently valid token with a fresh expiry.
func (c *Codec) Refresh(value string) (string, error) {
	claims, err := c.Verify(value)
	if err != nil {
		return "", err
	}

	return c.Mint(claims.UserId, claims.MemberId, claims.AccessToken, claims.MemberName)
}
