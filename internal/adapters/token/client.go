// Package token fetches call credentials from the token endpoint.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

const DefaultTimeout = 10 * time.Second

// videoGrant is the room grant carried by the access token.
type videoGrant struct {
	Room     string `json:"room"`
	RoomJoin bool   `json:"roomJoin"`
}

type accessClaims struct {
	Video *videoGrant `json:"video,omitempty"`
	jwt.RegisteredClaims
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Client implements core.CredentialSource against GET <base>/api/token.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

func (c *Client) Fetch(ctx context.Context, room domain.RoomName, user string) (domain.Credential, error) {
	q := url.Values{}
	q.Set("room", string(room))
	q.Set("username", user)
	endpoint := c.base + "/api/token?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Credential{}, &domain.TokenFetchError{Reason: "bad request", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Credential{}, &domain.TokenFetchError{Reason: "unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.Credential{}, &domain.TokenFetchError{Status: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}

	var body tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return domain.Credential{}, &domain.TokenFetchError{Reason: "undecodable response", Err: err}
	}
	if body.Token == "" {
		return domain.Credential{}, &domain.TokenFetchError{Reason: "no token received"}
	}

	cred := Inspect(body.Token)
	if cred.Room == "" {
		cred.Room = room
	}
	if cred.Identity == "" {
		cred.Identity = domain.Identity(user)
	}
	log.Info().Str("module", "adapters.token").
		Str("room", string(cred.Room)).
		Str("identity", string(cred.Identity)).
		Time("expires", cred.ExpiresAt).
		Msg("credential fetched")
	return cred, nil
}

// Inspect reads identity, room and expiry from token without verifying the
// signature. Tokens that are not JWTs come back with only Token set.
func Inspect(token string) domain.Credential {
	cred := domain.Credential{Token: token}
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		if !errors.Is(err, jwt.ErrTokenMalformed) {
			log.Debug().Err(err).Str("module", "adapters.token").Msg("inspect token")
		}
		return cred
	}
	cred.Identity = domain.Identity(claims.Subject)
	if claims.Video != nil {
		cred.Room = domain.RoomName(claims.Video.Room)
	}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred
}
