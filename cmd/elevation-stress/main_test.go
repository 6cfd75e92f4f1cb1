package main

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-elevation-lookup"
)

func TestBBox_RandomPoint(t *testing.T) {
	b := bbox{minLon: 121, minLat: 21, maxLon: 123, maxLat: 23}
	r := rand.New(rand.NewPCG(0, 0))
	for range 1000 {
		lon, lat := b.randomPoint(r)
		assert.True(t, b.minLon <= lon && lon <= b.maxLon)
		assert.True(t, b.minLat <= lat && lat <= b.maxLat)
	}
}

func TestBBox_AppendRandomPoints(t *testing.T) {
	b := bbox{minLon: -1, minLat: -2, maxLon: 1, maxLat: 2}
	r := rand.New(rand.NewPCG(0, 0))

	assert.Equal(t, "[]", string(b.appendRandomPoints(nil, r, 0)))

	points, err := elevation.DecodePoints(b.appendRandomPoints(nil, r, 64))
	assert.NoError(t, err)
	assert.Equal(t, 64, len(points))
	for _, point := range points {
		assert.True(t, -1 <= point[0] && point[0] <= 1)
		assert.True(t, -2 <= point[1] && point[1] <= 2)
	}
}

func TestClient_Query(t *testing.T) {
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if string(body) == "[]" {
			http.Error(w, "empty", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("[null]\n"))
	}))
	defer server.Close()

	c := &client{
		httpClient:    server.Client(),
		url:           server.URL,
		authorization: "Bearer token",
	}
	assert.NoError(t, c.query(context.Background(), []byte("[[0,0]]")))
	assert.Equal(t, "Bearer token", authorization)
	assert.Error(t, c.query(context.Background(), []byte("[]")))
}
