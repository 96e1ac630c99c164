package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abibardhan/EGMS-L3/internal/models"
)

func nominatimServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, nominatimUserAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNominatimResolvesCity(t *testing.T) {
	server := nominatimServer(t, `{
		"display_name": "Via Rizzoli, Bologna, Emilia-Romagna, Italy",
		"address": {"city": "Bologna", "state": "Emilia-Romagna", "country": "Italy"}
	}`, http.StatusOK)

	client := NewNominatimClient(server.URL, 5*time.Second, 100)
	result, err := client.ReverseGeocode(context.Background(), 44.4949, 11.3426)
	require.NoError(t, err)

	assert.Equal(t, "Bologna, Italy", result.Name)
	assert.Equal(t, "Emilia-Romagna", result.Admin)
	assert.Equal(t, models.GeoSourceNominatim, result.Source)
	assert.InDelta(t, 44.4949, result.Lat, 1e-9)
	assert.InDelta(t, 11.3426, result.Lon, 1e-9)
}

func TestNominatimFallsBackToTownThenVillage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "town",
			body: `{"display_name": "x", "address": {"town": "Alfeld", "country": "Germany"}}`,
			want: "Alfeld, Germany",
		},
		{
			name: "village",
			body: `{"display_name": "x", "address": {"village": "Sibbesse", "country": "Germany"}}`,
			want: "Sibbesse, Germany",
		},
		{
			name: "display name when no locality",
			body: `{"display_name": "Harz, Germany", "address": {"country": "Germany"}}`,
			want: "Harz, Germany",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := nominatimServer(t, tc.body, http.StatusOK)
			client := NewNominatimClient(server.URL, 5*time.Second, 100)

			result, err := client.ReverseGeocode(context.Background(), 52.0, 10.0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Name)
		})
	}
}

func TestNominatimEmptyResponseIsUnmatched(t *testing.T) {
	server := nominatimServer(t, `{}`, http.StatusOK)
	client := NewNominatimClient(server.URL, 5*time.Second, 100)

	result, err := client.ReverseGeocode(context.Background(), 52.0, 10.0)
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

func TestNominatimServerError(t *testing.T) {
	server := nominatimServer(t, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	client := NewNominatimClient(server.URL, 5*time.Second, 100)

	_, err := client.ReverseGeocode(context.Background(), 52.0, 10.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestNominatimRespectsContextCancellation(t *testing.T) {
	server := nominatimServer(t, `{}`, http.StatusOK)
	client := NewNominatimClient(server.URL, 5*time.Second, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ReverseGeocode(ctx, 52.0, 10.0)
	require.Error(t, err)
}
