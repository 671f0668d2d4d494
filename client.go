// Package siweauth is a Go client for the sign-in-with-Ethereum service.
//
// A Client keeps the session cookie in its own jar, so one Client is one
// signed-in user:
//
//	c, _ := siweauth.NewClient("http://localhost:9000")
//	res, err := c.SignIn(ctx, signer, 1)
//	me, err := c.Me(ctx)
package siweauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/siweauth/core"
)

const apiPrefix = "/api/siwe"

// Signer personal_signs the prepared message
type Signer interface {
	Address() common.Address
	SignMessage(message string) ([]byte, error)
}

// SignInResult is the answer of a successful verify
type SignInResult struct {
	Address string `json:"address"`
	IsNew   bool   `json:"is_new"`
}

// Profile is the signed-in user
type Profile struct {
	Address     string  `json:"address"`
	DisplayName *string `json:"display_name"`
}

// Client talks to a siweauth server
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client. Its Jar must be set for the
// session cookie to stick.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRetries sets how often a store_unavailable answer is retried
func WithRetries(n uint64) ClientOption {
	return func(c *Client) {
		c.retries = n
	}
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Jar: jar, Timeout: 10 * time.Second},
		retries:    3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Nonce fetches a fresh nonce
func (c *Client) Nonce(ctx context.Context) (string, error) {
	var nonce string
	err := c.retry(ctx, func() (err error) {
		nonce, err = c.nonce(ctx)
		return err
	})
	return nonce, err
}

// Prepare asks the server for the message to sign
func (c *Client) Prepare(ctx context.Context, address string, chainID uint64, nonce string) (string, error) {
	var message string
	err := c.retry(ctx, func() (err error) {
		message, err = c.prepare(ctx, address, chainID, nonce)
		return err
	})
	return message, err
}

// Verify submits a signed message. On success the session cookie is
// stored in the client's jar. It is sent once: the server spends the
// nonce on every attempt, so a failed verify needs a new nonce.
func (c *Client) Verify(ctx context.Context, message, signature string) (*SignInResult, error) {
	req := map[string]string{"message": message, "signature": signature}
	var resp SignInResult
	if err := c.send(ctx, http.MethodPost, "/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignIn runs nonce, prepare and verify for signer on chainID. When the
// server reports its store as unavailable the whole flow starts over with
// a fresh nonce.
func (c *Client) SignIn(ctx context.Context, signer Signer, chainID uint64) (*SignInResult, error) {
	var res *SignInResult
	err := c.retry(ctx, func() (err error) {
		res, err = c.signIn(ctx, signer, chainID)
		return err
	})
	return res, err
}

// Me returns the signed-in user
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var resp Profile
	err := c.retry(ctx, func() error {
		return c.send(ctx, http.MethodGet, "/me", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout ends the session
func (c *Client) Logout(ctx context.Context) error {
	return c.retry(ctx, func() error {
		return c.send(ctx, http.MethodPost, "/logout", nil, nil)
	})
}

func (c *Client) signIn(ctx context.Context, signer Signer, chainID uint64) (*SignInResult, error) {
	nonce, err := c.nonce(ctx)
	if err != nil {
		return nil, err
	}
	message, err := c.prepare(ctx, signer.Address().Hex(), chainID, nonce)
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignMessage(message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return c.Verify(ctx, message, hexutil.Encode(sig))
}

func (c *Client) nonce(ctx context.Context) (string, error) {
	var resp struct {
		Nonce string `json:"nonce"`
	}
	if err := c.send(ctx, http.MethodGet, "/nonce", nil, &resp); err != nil {
		return "", err
	}
	return resp.Nonce, nil
}

func (c *Client) prepare(ctx context.Context, address string, chainID uint64, nonce string) (string, error) {
	req := map[string]any{"address": address, "chain_id": chainID, "nonce": nonce}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.send(ctx, http.MethodPost, "/prepare", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// retry runs op again with exponential backoff while the server reports
// store_unavailable. Every other error ends the loop.
func (c *Client) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, core.ErrStoreUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Code, apiErr.Message = payload.Code, payload.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
