package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	domain "github.com/petcorner/storefront/internal/domain"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org/"

var errNoMatch = errors.New("geo: address not found")

// HTTPClient is the subset of http.Client used by the geocoder.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NominatimLocator geocodes postal addresses with the OpenStreetMap Nominatim search API.
// Concurrent lookups of the same address share one upstream request.
type NominatimLocator struct {
	baseURL   *url.URL
	userAgent string
	http      HTTPClient
	logger    *zap.Logger
	group     singleflight.Group
}

// NominatimConfig configures the geocoder. UserAgent is mandatory under the Nominatim usage policy.
type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	Logger    *zap.Logger
}

// NewNominatimLocator validates cfg and returns a geocoder.
func NewNominatimLocator(cfg NominatimConfig, httpClient HTTPClient) (*NominatimLocator, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = defaultNominatimURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("geo: invalid nominatim url %q", raw)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, errors.New("geo: user agent is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NominatimLocator{baseURL: base, userAgent: cfg.UserAgent, http: httpClient, logger: logger}, nil
}

func (l *NominatimLocator) Locate(ctx context.Context, address domain.Address) (domain.Coordinates, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("limit", "1")
	setIfPresent(query, "street", address.Street)
	setIfPresent(query, "city", address.City)
	setIfPresent(query, "postalcode", address.PostalCode)
	setIfPresent(query, "country", address.Country)
	if len(query) == 2 {
		return domain.Coordinates{}, errors.New("geo: address is empty")
	}

	endpoint := l.baseURL.ResolveReference(&url.URL{Path: "search", RawQuery: query.Encode()})
	// The shared lookup outlives any single caller; each caller still stops waiting on its own ctx.
	results := l.group.DoChan(endpoint.String(), func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
		defer cancel()
		return l.search(lookupCtx, endpoint.String())
	})
	select {
	case <-ctx.Done():
		return domain.Coordinates{}, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return domain.Coordinates{}, res.Err
		}
		l.logger.Debug("address geocoded", zap.Bool("shared", res.Shared))
		return res.Val.(domain.Coordinates), nil
	}
}

func (l *NominatimLocator) search(ctx context.Context, endpoint string) (domain.Coordinates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Coordinates{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.http.Do(req)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("geo: search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.Coordinates{}, fmt.Errorf("geo: search returned %d", resp.StatusCode)
	}

	var places []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&places); err != nil {
		return domain.Coordinates{}, fmt.Errorf("geo: decode search: %w", err)
	}
	if len(places) == 0 {
		return domain.Coordinates{}, errNoMatch
	}
	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return domain.Coordinates{}, fmt.Errorf("geo: malformed coordinates %q,%q", places[0].Lat, places[0].Lon)
	}
	return domain.Coordinates{Latitude: lat, Longitude: lon}, nil
}

func setIfPresent(values url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		values.Set(key, value)
	}
}
