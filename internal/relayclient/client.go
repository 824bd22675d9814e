// Package relayclient is the typed HTTP client the orchestrator (and the
// host application) uses against the matchmaking and relay API.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mossy-p/voice-match/internal/models"
)

type Client struct {
	base  string
	token string
	http  *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		base:  baseURL,
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError is the wire form of a failed call.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// codeToErr maps the server's machine-readable codes back onto the sentinel
// taxonomy so callers can use errors.Is on both sides of the wire.
var codeToErr = map[string]error{
	"unauthorized":   models.ErrUnauthorized,
	"not_onboarded":  models.ErrNotOnboarded,
	"not_active":     models.ErrNotActive,
	"not_in_pool":    models.ErrNotInPool,
	"invalid_peer":   models.ErrInvalidPeer,
	"no_offer_found": models.ErrNoOfferFound,
	"not_found":      models.ErrNotFound,
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil {
			if sentinel, ok := codeToErr[apiErr.Code]; ok {
				return fmt.Errorf("%s %s: %w", method, path, sentinel)
			}
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// --- matchmaking ---

func (c *Client) Join(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/pool/join", nil, nil)
}

func (c *Client) Leave(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/pool/leave", nil, nil)
}

func (c *Client) IsInPool(ctx context.Context) (bool, error) {
	var out struct {
		InPool bool `json:"inPool"`
	}
	err := c.do(ctx, http.MethodGet, "/api/pool/status", nil, &out)
	return out.InPool, err
}

// FindPeer returns "" when no peer is available.
func (c *Client) FindPeer(ctx context.Context) (string, error) {
	var out struct {
		Peer *string `json:"peer"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/pool/peer", nil, &out); err != nil {
		return "", err
	}
	if out.Peer == nil {
		return "", nil
	}
	return *out.Peer, nil
}

func (c *Client) Pair(ctx context.Context, peer string) (string, error) {
	var out struct {
		PairingKey string `json:"pairingKey"`
	}
	err := c.do(ctx, http.MethodPost, "/api/pool/pair", map[string]string{"peer": peer}, &out)
	return out.PairingKey, err
}

func (c *Client) NextPeer(ctx context.Context) (string, error) {
	var out struct {
		Peer *string `json:"peer"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/pool/next", nil, &out); err != nil {
		return "", err
	}
	if out.Peer == nil {
		return "", nil
	}
	return *out.Peer, nil
}

func (c *Client) Terminate(ctx context.Context, peer string) error {
	return c.do(ctx, http.MethodPost, "/api/pool/terminate", map[string]string{"peer": peer}, nil)
}

func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/presence/heartbeat", nil, nil)
}

func (c *Client) ActiveCount(ctx context.Context) (int, error) {
	var out struct {
		Active int `json:"active"`
	}
	err := c.do(ctx, http.MethodGet, "/api/presence/active", nil, &out)
	return out.Active, err
}

// --- signaling relay ---

func (c *Client) CreateOffer(ctx context.Context, peer, offer string) error {
	return c.do(ctx, http.MethodPost, "/api/signal/"+url.PathEscape(peer)+"/offer",
		map[string]string{"payload": offer}, nil)
}

func (c *Client) SendAnswer(ctx context.Context, peer, answer string) error {
	return c.do(ctx, http.MethodPost, "/api/signal/"+url.PathEscape(peer)+"/answer",
		map[string]string{"payload": answer}, nil)
}

func (c *Client) ExchangeCandidate(ctx context.Context, peer, candidate string) error {
	return c.do(ctx, http.MethodPost, "/api/signal/"+url.PathEscape(peer)+"/candidate",
		map[string]string{"payload": candidate}, nil)
}

// State returns nil when no session exists yet.
func (c *Client) State(ctx context.Context, peer string) (*models.SignalingSession, error) {
	var out struct {
		Session *models.SignalingSession `json:"session"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/signal/"+url.PathEscape(peer), nil, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

func (c *Client) Cleanup(ctx context.Context, peer string) error {
	return c.do(ctx, http.MethodDelete, "/api/signal/"+url.PathEscape(peer), nil, nil)
}

// --- shared playback sync ---

func (c *Client) SetSyncState(ctx context.Context, peer string, state models.SyncState) error {
	return c.do(ctx, http.MethodPut, "/api/sync/"+url.PathEscape(peer), state, nil)
}

// GetSyncState returns nil when no document exists yet.
func (c *Client) GetSyncState(ctx context.Context, peer string) (*models.SyncState, error) {
	var out struct {
		State *models.SyncState `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sync/"+url.PathEscape(peer), nil, &out); err != nil {
		return nil, err
	}
	return out.State, nil
}

func (c *Client) CleanupSync(ctx context.Context, peer string) error {
	return c.do(ctx, http.MethodDelete, "/api/sync/"+url.PathEscape(peer), nil, nil)
}
