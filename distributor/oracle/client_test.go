package oracle_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xla-labs/waterfall-hub/distributor/oracle"
	"github.com/zeebo/assert"
)

func TestHTTPFeed_LatestAnswer(t *testing.T) {
	updatedAt := time.Now().Add(-time.Minute).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/v1/prices/ETH-USD")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"symbol":"ETH-USD","price":"1843.52","updated_at":%d}`, updatedAt)
	}))
	defer srv.Close()

	feed, err := oracle.NewHTTPFeed(srv.URL, "ETH-USD", 8)
	assert.NoError(t, err)
	assert.Equal(t, feed.Description(), "ETH-USD")

	a, err := feed.LatestAnswer()
	assert.NoError(t, err)
	// 1843.52 scaled to 8 decimals.
	assert.Equal(t, a.Price.Int64(), int64(184_352_000_000))
	assert.Equal(t, a.Decimals, uint8(8))
	assert.Equal(t, a.UpdatedAt.Unix(), updatedAt)
}

func TestHTTPFeed_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/prices/DOWN":
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		case "/v1/prices/GARBAGE":
			fmt.Fprint(w, `{"symbol":"GARBAGE","price":"not-a-number","updated_at":0}`)
		}
	}))
	defer srv.Close()

	feed, err := oracle.NewHTTPFeed(srv.URL, "DOWN", 8)
	assert.NoError(t, err)
	_, err = feed.LatestAnswer()
	assert.Error(t, err)

	feed, err = oracle.NewHTTPFeed(srv.URL, "GARBAGE", 8)
	assert.NoError(t, err)
	_, err = feed.LatestAnswer()
	assert.Error(t, err)
}
