// Package revocation looks up revoked token hashes at the trust anchor.
// Lookups sit on the hot path of every authenticated request, so the HTTP
// call is wrapped in a circuit breaker: when the anchor misbehaves the
// breaker opens and lookups fail fast instead of piling up.
package revocation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"nildb/pkg/errors"
)

const lookupPath = "/api/v1/revocations/lookup"

type lookupRequest struct {
	Hashes []string `json:"hashes"`
}

type lookupResponse struct {
	Revoked []RevokedToken `json:"revoked"`
}

// RevokedToken is one revocation record returned by the anchor.
type RevokedToken struct {
	Hash      string    `json:"hash"`
	RevokedAt time.Time `json:"revokedAt"`
}

// Client queries the trust anchor's revocation registry.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient builds a revocation client for the anchor at baseURL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "revocation-lookup",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.8
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: breaker,
		logger:  logger,
	}
}

// Lookup returns the subset of hashes the anchor reports as revoked.
func (c *Client) Lookup(ctx context.Context, hashes []string) ([]RevokedToken, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.lookup(ctx, hashes)
	})
	if err != nil {
		switch err {
		case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
			return nil, errors.Wrap(errors.KindDatabase, "revocation registry unavailable", err)
		}
		return nil, err
	}
	return result.([]RevokedToken), nil
}

func (c *Client) lookup(ctx context.Context, hashes []string) ([]RevokedToken, error) {
	body, err := json.Marshal(lookupRequest{Hashes: hashes})
	if err != nil {
		return nil, errors.Wrap(errors.KindDatabase, "encode revocation lookup", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+lookupPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.KindDatabase, "build revocation lookup", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindDatabase, "revocation lookup", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.KindDatabase, "revocation lookup returned %s", resp.Status)
	}

	var decoded lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(errors.KindDatabase, "decode revocation lookup", err)
	}
	return decoded.Revoked, nil
}

// Revoked reports whether any of the hashes is revoked, naming the first
// offender.
func (c *Client) Revoked(ctx context.Context, hashes []string) (bool, string, error) {
	revoked, err := c.Lookup(ctx, hashes)
	if err != nil {
		return false, "", err
	}
	if len(revoked) == 0 {
		return false, "", nil
	}
	return true, fmt.Sprintf("token %s revoked at %s", revoked[0].Hash, revoked[0].RevokedAt.Format(time.RFC3339)), nil
}
