package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"campus-transport/internal/domain/geo"
)

var ErrNoFix = errors.New("location: response carried no coordinates")

// HTTP reads a fix from a device bridge that answers GET with
// {"lat": .., "lng": ..} (or "latitude"/"longitude").
type HTTP struct {
	URL    string
	Client *http.Client
}

type fix struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (provider HTTP) CurrentPosition(ctx context.Context, opts Options) (geo.Point, error) {
	target, err := url.Parse(provider.URL)
	if err != nil || target.Host == "" {
		return geo.Point{}, fail(Unsupported, fmt.Errorf("bad provider url %q", provider.URL))
	}
	if !secure(target) {
		return geo.Point{}, fail(InsecureContext, nil)
	}

	q := target.Query()
	q.Set("maximumAge", strconv.FormatInt(opts.MaximumAge.Milliseconds(), 10))
	q.Set("highAccuracy", strconv.FormatBool(opts.HighAccuracy))
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return geo.Point{}, fail(Unavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if opts.MaximumAge == 0 {
		req.Header.Set("Cache-Control", "no-cache")
	}

	client := provider.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return geo.Point{}, fail(Timeout, ctx.Err())
		}
		return geo.Point{}, fail(Unavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return geo.Point{}, fail(PermissionDenied, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return geo.Point{}, fail(Timeout, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return geo.Point{}, fail(Unavailable, fmt.Errorf("status %d", resp.StatusCode))
	}

	var body fix
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return geo.Point{}, fail(Unavailable, fmt.Errorf("decode fix: %w", err))
	}
	lat, lng := body.Lat, body.Lng
	if lat == nil || lng == nil {
		lat, lng = body.Latitude, body.Longitude
	}
	point, ok := geo.PointFrom(lat, lng)
	if !ok {
		return geo.Point{}, fail(Unavailable, ErrNoFix)
	}
	return point, nil
}

// secure mirrors the browser rule: https anywhere, plain http only on loopback.
func secure(u *url.URL) bool {
	if strings.EqualFold(u.Scheme, "https") {
		return true
	}
	if !strings.EqualFold(u.Scheme, "http") {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
