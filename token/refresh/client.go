package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/yoto-session-server/internal/errors"
	"golang.org/x/oauth2"
)

// ErrRefreshFailed wraps every failure to obtain tokens from the provider:
// transport errors, non-2xx responses and responses without an access token.
var ErrRefreshFailed = errors.New("token refresh failed")

// Tokens is what the provider hands back from a refresh or code exchange.
type Tokens struct {
	AccessToken       string
	AccessTokenExpiry time.Time
	// RefreshToken is the rotated credential, or the presented one when the provider did not rotate.
	RefreshToken string
}

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	RedirectURL  string

	// Timeout bounds each call to the token endpoint.
	Timeout time.Duration
	// DefaultAccessTTL applies when the provider reports no expiry at all.
	DefaultAccessTTL time.Duration

	HTTPClient *http.Client
	Now        func() time.Time
}

// Client talks to the OAuth token endpoint. It is stateless and safe to share.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
	defaultTTL time.Duration
	now        func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultAccessTTL <= 0 {
		cfg.DefaultAccessTTL = 10 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		defaultTTL: cfg.DefaultAccessTTL,
		now:        cfg.Now,
	}
}

// DiscoverTokenURL resolves the token endpoint from an OIDC issuer's discovery document.
func DiscoverTokenURL(ctx context.Context, issuerURL string) (string, error) {
	provider, err := oidc.NewProvider(ctx, strings.TrimRight(issuerURL, "/"))
	if err != nil {
		return "", fmt.Errorf("[refresh DiscoverTokenURL] oidc discovery: %w", err)
	}
	tokenURL := provider.Endpoint().TokenURL
	if tokenURL == "" {
		return "", fmt.Errorf("[refresh DiscoverTokenURL] issuer %s advertises no token endpoint", issuerURL)
	}
	return tokenURL, nil
}

// Refresh exchanges refreshToken for a new access token (grant_type=refresh_token).
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, fmt.Errorf("%w: empty refresh token", ErrRefreshFailed)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Tokens{}, wrapProviderError(err)
	}
	return c.tokensFrom(tok, refreshToken), nil
}

// Exchange trades an authorization code for tokens. Both an access and a refresh
// token are required, since a session without a refresh token cannot survive a restart.
func (c *Client) Exchange(ctx context.Context, code string) (Tokens, error) {
	if code == "" {
		return Tokens{}, fmt.Errorf("%w: empty authorization code", ErrRefreshFailed)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return Tokens{}, wrapProviderError(err)
	}
	if tok.RefreshToken == "" {
		return Tokens{}, fmt.Errorf("%w: %w: no refresh token", ErrRefreshFailed, apperrors.ErrMissingTokens)
	}
	return c.tokensFrom(tok, ""), nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) tokensFrom(tok *oauth2.Token, presentedRefresh string) Tokens {
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = presentedRefresh
	}
	return Tokens{
		AccessToken:       tok.AccessToken,
		AccessTokenExpiry: c.expiryOf(tok),
		RefreshToken:      refreshToken,
	}
}

func wrapProviderError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return fmt.Errorf("%w: %w (status %d, code %q): %w", ErrRefreshFailed, apperrors.ErrProviderRejected, status, retrieveErr.ErrorCode, err)
	}
	return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
}
