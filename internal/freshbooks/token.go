package freshbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// expirySkew refreshes tokens slightly before they actually expire.
const expirySkew = 5 * time.Minute

// Token is one OAuth access/refresh token pair. Refresh tokens are
// single-use: losing the new pair after a refresh forces manual
// re-authentication.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token is missing or about to expire.
func (t Token) Expired(now time.Time) bool {
	return t.AccessToken == "" || now.After(t.ExpiresAt.Add(-expirySkew))
}

// TokenStore persists the current token pair.
type TokenStore interface {
	Load(ctx context.Context) (Token, error)
	Save(ctx context.Context, token Token) error
}

// RedisTokenStore keeps the token pair in a single redis hash so both
// tokens are saved in one write.
type RedisTokenStore struct {
	client *redis.Client
	key    string
}

// NewRedisTokenStore constructs the store.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, key: "invoicing:oauth"}
}

// Load reads the stored token pair. A missing hash yields a zero Token.
func (s *RedisTokenStore) Load(ctx context.Context) (Token, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Token{}, fmt.Errorf("freshbooks: load token: %w", err)
	}
	if len(fields) == 0 {
		return Token{}, nil
	}
	var token Token
	token.AccessToken = fields["access_token"]
	token.RefreshToken = fields["refresh_token"]
	if raw := fields["expires_at"]; raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Token{}, fmt.Errorf("freshbooks: parse token expiry: %w", err)
		}
		token.ExpiresAt = time.Unix(unix, 0)
	}
	return token, nil
}

// Save writes both tokens atomically.
func (s *RedisTokenStore) Save(ctx context.Context, token Token) error {
	err := s.client.HSet(ctx, s.key,
		"access_token", token.AccessToken,
		"refresh_token", token.RefreshToken,
		"expires_at", strconv.FormatInt(token.ExpiresAt.Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("freshbooks: save token: %w", err)
	}
	return nil
}

// ErrReauthRequired indicates the refresh token was already used or revoked
// and a new authorization code must be exchanged manually.
var ErrReauthRequired = errors.New("freshbooks: refresh token invalid, manual re-authentication required")

// TokenManager hands out valid access tokens, refreshing through the OAuth
// endpoint when needed. Concurrent refreshes collapse into one call so the
// single-use refresh token is consumed exactly once.
type TokenManager struct {
	store        TokenStore
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	logger       *slog.Logger
	group        singleflight.Group
	now          func() time.Time
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(store TokenStore, httpClient *http.Client, tokenURL, clientID, clientSecret string, logger *slog.Logger) *TokenManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenManager{
		store:        store,
		httpClient:   httpClient,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		now:          time.Now,
	}
}

// AccessToken returns a usable access token, refreshing first when the
// stored one is expiring or when force is set (after a 401).
func (m *TokenManager) AccessToken(ctx context.Context, force bool) (string, error) {
	token, err := m.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if !force && !token.Expired(m.now()) {
		return token.AccessToken, nil
	}
	refreshed, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx, token.AccessToken)
	})
	if err != nil {
		return "", err
	}
	return refreshed.(Token).AccessToken, nil
}

func (m *TokenManager) refresh(ctx context.Context, staleAccess string) (Token, error) {
	current, err := m.store.Load(ctx)
	if err != nil {
		return Token{}, err
	}
	// Another caller may have refreshed while we waited on the flight group.
	// Matching on the access token rather than expiry also covers revoked
	// tokens that are formally still valid.
	if current.AccessToken != "" && current.AccessToken != staleAccess && !current.Expired(m.now()) {
		return current, nil
	}
	if current.RefreshToken == "" {
		return Token{}, ErrReauthRequired
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("freshbooks: token refresh: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Error        string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Token{}, fmt.Errorf("freshbooks: decode token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if payload.Error == "invalid_grant" {
			return Token{}, ErrReauthRequired
		}
		return Token{}, fmt.Errorf("freshbooks: token refresh failed with status %d", resp.StatusCode)
	}
	if payload.AccessToken == "" || payload.RefreshToken == "" {
		return Token{}, errors.New("freshbooks: token response missing access or refresh token")
	}

	expiresIn := payload.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 43200
	}
	token := Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    m.now().Add(time.Duration(expiresIn) * time.Second),
	}
	// Save before returning: the old refresh token is now burned.
	if err := m.store.Save(ctx, token); err != nil {
		return Token{}, err
	}
	m.logger.Info("refreshed invoicing access token", slog.Time("expires_at", token.ExpiresAt))
	return token, nil
}
