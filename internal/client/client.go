// README: HTTP client for the dispatch API, driver and passenger sides; maps responses back to sentinel errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ridedispatch/internal/modules/availability"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/types"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
}

// WithHTTPClient replaces the transport, e.g. with an httptest server client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpc = h
	return c
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type Me struct {
	UID      string                 `json:"uid"`
	Role     string                 `json:"role"`
	Presence *availability.Presence `json:"presence,omitempty"`
}

// Probe is the connection check: any 2xx from /users/me counts as alive.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Me(ctx)
	return err
}

func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// CurrentRide returns nil when the caller has no active ride.
func (c *Client) CurrentRide(ctx context.Context) (*ride.Ride, error) {
	var r *ride.Ride
	if err := c.do(ctx, http.MethodGet, "/api/rides/current", nil, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// AvailableOffer returns nil when there is nothing to offer.
func (c *Client) AvailableOffer(ctx context.Context) (*matching.Offer, error) {
	var o *matching.Offer
	if err := c.do(ctx, http.MethodGet, "/api/rides/available", nil, &o); err != nil {
		return nil, err
	}
	return o, nil
}

func (c *Client) Accept(ctx context.Context, rideID types.ID) (*ride.Ride, error) {
	var r ride.Ride
	if err := c.do(ctx, http.MethodPost, "/api/rides/accept/"+rideID.String(), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Decline(ctx context.Context, rideID types.ID) error {
	return c.do(ctx, http.MethodPost, "/api/rides/decline/"+rideID.String(), nil, nil)
}

func (c *Client) Start(ctx context.Context, rideID types.ID) (*ride.Ride, error) {
	var r ride.Ride
	if err := c.do(ctx, http.MethodPost, "/api/rides/start/"+rideID.String(), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Complete(ctx context.Context, rideID types.ID) (*ride.Ride, error) {
	var r ride.Ride
	if err := c.do(ctx, http.MethodPost, "/api/rides/complete/"+rideID.String(), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// RequestRide creates a ride for the calling passenger. A passenger with an
// active ride gets ErrInvalidState.
func (c *Client) RequestRide(ctx context.Context, origin, destination types.Place) (*ride.Ride, error) {
	var r ride.Ride
	body := map[string]any{"origin": origin, "destination": destination}
	if err := c.do(ctx, http.MethodPost, "/api/rides", body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Cancel cancels the caller's ride. reason may be empty.
func (c *Client) Cancel(ctx context.Context, rideID types.ID, reason string) (*ride.Ride, error) {
	var body any
	if reason != "" {
		body = map[string]any{"reason": reason}
	}
	var r ride.Ride
	if err := c.do(ctx, http.MethodPost, "/api/rides/cancel/"+rideID.String(), body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SetAvailability toggles the driver online or offline. loc is optional.
func (c *Client) SetAvailability(ctx context.Context, online bool, loc *types.Point) error {
	body := map[string]any{"isAvailable": online}
	if loc != nil {
		body["coordinates"] = [2]float64{loc.Lng, loc.Lat}
	}
	return c.do(ctx, http.MethodPatch, "/api/users/availability", body, nil)
}

func (c *Client) UpdateLocation(ctx context.Context, loc types.Point) (bool, error) {
	var out struct {
		Applied bool `json:"applied"`
	}
	body := map[string]any{"coordinates": [2]float64{loc.Lng, loc.Lat}}
	if err := c.do(ctx, http.MethodPatch, "/api/users/location", body, &out); err != nil {
		return false, err
	}
	return out.Applied, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%s %s: %v: %w", method, path, err, types.ErrTransient)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %v: %w", method, path, err, types.ErrTransient)
	}
	if resp.StatusCode >= 300 {
		return statusError(method, path, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// statusError maps the server's status and error code onto the shared sentinels.
func statusError(method, path string, status int, data []byte) error {
	var body apiError
	_ = json.Unmarshal(data, &body)

	var sentinel error
	switch {
	case status == http.StatusBadRequest:
		sentinel = types.ErrBadRequest
	case status == http.StatusUnauthorized:
		sentinel = types.ErrUnauthenticated
	case status == http.StatusForbidden:
		sentinel = types.ErrForbidden
	case status == http.StatusNotFound:
		sentinel = types.ErrNotFound
	case status == http.StatusConflict && body.Code == "invalid_state":
		sentinel = types.ErrInvalidState
	case status == http.StatusConflict:
		sentinel = types.ErrConflict
	case status >= 500, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		sentinel = types.ErrTransient
	default:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, status)
	}
	if body.Error != "" {
		return fmt.Errorf("%s %s: %s: %w", method, path, body.Error, sentinel)
	}
	return fmt.Errorf("%s %s: status %d: %w", method, path, status, sentinel)
}
