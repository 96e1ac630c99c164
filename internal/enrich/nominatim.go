package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/abibardhan/EGMS-L3/internal/models"
)

const nominatimUserAgent = "egms-l3-tool/1.0"

// NominatimClient reverse-geocodes against a Nominatim instance. Requests
// are rate-limited client-side; the public OSM instance enforces a strict
// usage policy.
type NominatimClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewNominatimClient creates a client capped at rps requests per second.
func NewNominatimClient(baseURL string, timeout time.Duration, rps float64) *NominatimClient {
	return &NominatimClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// ReverseGeocode resolves a coordinate to "locality, country". Locality
// preference is city, then town, then village; with none of those the full
// display name is used. An empty response body yields a zero Result.
func (c *NominatimClient) ReverseGeocode(ctx context.Context, lat, lon float64) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	params := url.Values{
		"format": {"jsonv2"},
		"lat":    {fmt.Sprintf("%.6f", lat)},
		"lon":    {fmt.Sprintf("%.6f", lon)},
	}
	u := fmt.Sprintf("%s/reverse?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Result{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", nominatimUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("nominatim error: status %d: %s", resp.StatusCode, body)
	}

	var nr nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return Result{}, fmt.Errorf("error decoding response: %w", err)
	}

	locality := nr.Address.City
	if locality == "" {
		locality = nr.Address.Town
	}
	if locality == "" {
		locality = nr.Address.Village
	}

	name := nr.DisplayName
	if locality != "" && nr.Address.Country != "" {
		name = fmt.Sprintf("%s, %s", locality, nr.Address.Country)
	}
	if name == "" {
		return Result{}, nil
	}

	admin := nr.Address.State
	if admin == "" {
		admin = nr.Address.Country
	}

	return Result{
		Name:   name,
		Admin:  admin,
		Lat:    lat,
		Lon:    lon,
		Source: models.GeoSourceNominatim,
	}, nil
}
