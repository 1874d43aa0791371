package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Credential is one app-user/secret pair issued by the provider. The client
// holds an ordered list and advances to the next pair when the provider
// rate-limits the current one.
type Credential struct {
	AppUser   string
	AppSecret string
}

type Config struct {
	BaseURL     string
	Credentials []Credential
	Timeout     time.Duration
}

// Client is a minimal mobile-money API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      []Credential
	log        *zap.Logger

	mu     sync.Mutex
	active int
	tokens map[int]cachedToken
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

func NewClient(cfg Config, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		creds:      cfg.Credentials,
		log:        log.Named("momo.client"),
		tokens:     map[int]cachedToken{},
	}
}

func (c *Client) Collect(ctx context.Context, req CollectRequest) (TransferResponse, error) {
	var resp TransferResponse
	err := c.do(ctx, http.MethodPost, "/api/collect/", req, &resp)
	return resp, err
}

func (c *Client) Withdraw(ctx context.Context, req WithdrawRequest) (TransferResponse, error) {
	var resp TransferResponse
	if err := c.do(ctx, http.MethodPost, "/api/withdraw/", req, &resp); err != nil {
		return resp, err
	}
	if resp.Status == StatusFailed {
		return resp, ErrTransferFailed
	}
	return resp, nil
}

func (c *Client) TransactionStatus(ctx context.Context, reference string) (Transaction, error) {
	var resp Transaction
	err := c.do(ctx, http.MethodGet, "/api/transaction/"+reference+"/", nil, &resp)
	return resp, err
}

// do walks the credential list starting from the last one that worked. Each
// attempt authenticates and issues the request; a 429 from either step moves
// on to the next credential, any other failure is returned as-is.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if len(c.creds) == 0 {
		return ErrNoCredentials
	}

	start := c.activeIndex()
	var lastErr error
	for i := 0; i < len(c.creds); i++ {
		idx := (start + i) % len(c.creds)

		token, err := c.authenticate(ctx, idx)
		if err != nil {
			if err == ErrRateLimited {
				lastErr = err
				continue
			}
			return err
		}

		err = c.request(ctx, method, path, body, token, out)
		if err == nil {
			c.setActive(idx)
			return nil
		}
		if err == ErrRateLimited {
			c.log.Warn("momo credential rate limited, rotating", zap.Int("credential", idx))
			lastErr = err
			continue
		}
		if err == ErrUnauthorized {
			// Token may have expired server-side; drop it and retry once
			// with a fresh one before giving up on this credential.
			c.dropToken(idx)
			token, authErr := c.authenticate(ctx, idx)
			if authErr != nil {
				return authErr
			}
			if err = c.request(ctx, method, path, body, token, out); err == nil {
				c.setActive(idx)
				return nil
			}
		}
		return err
	}
	if lastErr == nil {
		lastErr = ErrNoCredentials
	}
	return lastErr
}

func (c *Client) authenticate(ctx context.Context, idx int) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[idx]
	c.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.value, nil
	}

	cred := c.creds[idx]
	payload := map[string]string{
		"app_user":   cred.AppUser,
		"app_secret": cred.AppSecret,
	}
	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/token/", payload, "", &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", ErrUnauthorized
	}

	expiry := time.Duration(resp.ExpiresIn) * time.Second
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	c.mu.Lock()
	// Renew one minute early so in-flight calls do not race the expiry.
	c.tokens[idx] = cachedToken{value: resp.Token, expiresAt: time.Now().Add(expiry - time.Minute)}
	c.mu.Unlock()
	return resp.Token, nil
}

func (c *Client) request(ctx context.Context, method, path string, body any, token string, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		return fmt.Errorf("momo: unexpected status %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) activeIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Client) setActive(idx int) {
	c.mu.Lock()
	c.active = idx
	c.mu.Unlock()
}

func (c *Client) dropToken(idx int) {
	c.mu.Lock()
	delete(c.tokens, idx)
	c.mu.Unlock()
}
