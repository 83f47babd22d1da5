// internal/api/client.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doggo-app/locshare/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Client reads the HTTP views of a locshare store server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the store server is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Locations returns the current location of every walker.
func (c *Client) Locations(ctx context.Context) ([]core.LocationRecord, error) {
	var fc geom.GeoJSONFeatureCollection
	if err := c.getJSON(ctx, "/api/v1/locations", nil, &fc); err != nil {
		return nil, err
	}

	out := make([]core.LocationRecord, 0, len(fc))
	for i, f := range fc {
		if !f.Geometry.IsPoint() {
			return nil, fmt.Errorf("feature %d: expected Point, got %s", i, f.Geometry.Type())
		}
		xy, ok := f.Geometry.MustAsPoint().XY()
		if !ok {
			return nil, fmt.Errorf("feature %d: empty point", i)
		}
		id, _ := f.ID.(string)
		out = append(out, core.NewLocationRecord(id, xy.Y, xy.X))
	}
	return out, nil
}

// History returns up to limit recorded fixes for key, oldest first.
// Fix times are not part of the track and are left zero.
func (c *Client) History(ctx context.Context, key string, limit int) ([]core.Position, error) {
	q := url.Values{"key": {key}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var f geom.GeoJSONFeature
	if err := c.getJSON(ctx, "/api/v1/history", q, &f); err != nil {
		return nil, err
	}
	if !f.Geometry.IsLineString() {
		return nil, fmt.Errorf("expected LineString, got %s", f.Geometry.Type())
	}

	seq := f.Geometry.MustAsLineString().Coordinates()
	out := make([]core.Position, seq.Length())
	for i := range out {
		xy := seq.GetXY(i)
		out[i] = core.Position{Latitude: xy.Y, Longitude: xy.X}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	if q == nil {
		q = url.Values{}
	}
	if c.apiKey != "" {
		q.Set("secret", c.apiKey)
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
