package token

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

// JWKS validates tokens minted by an external identity provider. The key set
// is cached and refreshed at most every 15 minutes.
type JWKS struct {
	url   string
	cache *jwk.Cache
}

func NewJWKS(ctx context.Context, url string) (*JWKS, error) {
	c := jwk.NewCache(ctx)
	if err := c.Register(url, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("register jwks: %w", err)
	}
	return &JWKS{url: url, cache: c}, nil
}

func (j *JWKS) Subject(ctx context.Context, raw string) (string, error) {
	keySet, err := j.cache.Get(ctx, j.url)
	if err != nil {
		return "", fmt.Errorf("fetch jwks: %w", err)
	}
	tok, err := jwxjwt.Parse([]byte(raw), jwxjwt.WithKeySet(keySet), jwxjwt.WithValidate(true))
	if err != nil || tok.Subject() == "" {
		return "", ErrInvalid
	}
	return tok.Subject(), nil
}
