package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"

	"wow-tracker/internal/config"
	"wow-tracker/internal/constants"
	"wow-tracker/internal/domain"
)

const oauthTokenURL = "https://oauth.battle.net/token"

// BlizzardError is a non-2xx response from the Blizzard API.
type BlizzardError struct {
	Status int
	Path   string
	Body   string
}

func (e *BlizzardError) Error() string {
	return fmt.Sprintf("blizzard API request failed (%d) for %s", e.Status, e.Path)
}

// IsNotFound reports whether err is a Blizzard 404, which profile endpoints
// return for private or renamed characters.
func IsNotFound(err error) bool {
	var apiErr *BlizzardError
	return errors.As(err, &apiErr) && apiErr.Status == fasthttp.StatusNotFound
}

type oauthToken struct {
	accessToken string
	expiresAt   time.Time
}

// BlizzardClient fetches WoW profile data using OAuth client credentials.
// The access token is cached until shortly before expiry.
type BlizzardClient struct {
	clientID     string
	clientSecret string
	locale       string
	client       *fasthttp.Client

	tokenMu sync.Mutex
	token   oauthToken
}

func NewBlizzardClient(cfg *config.Config) *BlizzardClient {
	return &BlizzardClient{
		clientID:     cfg.BlizzardClientID,
		clientSecret: cfg.BlizzardClientSecret,
		locale:       cfg.Locale,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func regionHost(region domain.Region) string {
	return fmt.Sprintf("https://%s.api.blizzard.com", strings.ToLower(string(region)))
}

func (c *BlizzardClient) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token.accessToken != "" && time.Until(c.token.expiresAt) > constants.OAuthTokenSlack {
		return c.token.accessToken, nil
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	basicAuth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.SetRequestURI(oauthTokenURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.Set("Authorization", "Basic "+basicAuth)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBodyString("grant_type=client_credentials")

	if err := c.do(ctx, req, resp); err != nil {
		return "", fmt.Errorf("blizzard oauth token request: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", &BlizzardError{Status: resp.StatusCode(), Path: "/token", Body: string(resp.Body())}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", fmt.Errorf("blizzard oauth token decode: %w", err)
	}

	c.token = oauthToken{
		accessToken: payload.AccessToken,
		expiresAt:   time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}
	return c.token.accessToken, nil
}

func (c *BlizzardClient) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if deadline, ok := ctx.Deadline(); ok {
		return c.client.DoDeadline(req, resp, deadline)
	}
	return c.client.Do(req, resp)
}

// ProfileJSON fetches one profile-namespace endpoint and returns the decoded
// JSON document. Rate-limit and server errors are retried with exponential
// backoff before surfacing.
func (c *BlizzardClient) ProfileJSON(ctx context.Context, region domain.Region, path string) (any, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("namespace", "profile-"+strings.ToLower(string(region)))
	query.Set("locale", c.locale)
	requestURI := regionHost(region) + path + "?" + query.Encode()

	backoff := retry.WithMaxRetries(constants.APIRetryAttempts, retry.NewExponential(constants.APIRetryBase))

	var document any
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(requestURI)
		req.Header.SetMethod(fasthttp.MethodGet)
		req.Header.Set("Authorization", "Bearer "+token)

		if err := c.do(ctx, req, resp); err != nil {
			return retry.RetryableError(err)
		}

		status := resp.StatusCode()
		if status == fasthttp.StatusTooManyRequests || status >= fasthttp.StatusInternalServerError {
			return retry.RetryableError(&BlizzardError{Status: status, Path: path, Body: string(resp.Body())})
		}
		if status != fasthttp.StatusOK {
			return &BlizzardError{Status: status, Path: path, Body: string(resp.Body())}
		}

		return json.Unmarshal(resp.Body(), &document)
	})
	if err != nil {
		return nil, err
	}
	return document, nil
}

// CharacterPath builds the profile path for one character, lowercasing and
// escaping the realm and name segments.
func CharacterPath(character domain.TrackedCharacterConfig, suffix string) string {
	realm := url.PathEscape(strings.ToLower(character.RealmSlug))
	name := url.PathEscape(strings.ToLower(character.CharacterName))
	return "/profile/wow/character/" + realm + "/" + name + suffix
}
