package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// A bbox is a longitude/latitude bounding box.
type bbox struct {
	minLon float64
	minLat float64
	maxLon float64
	maxLat float64
}

// randomPoint returns a random point in b.
func (b bbox) randomPoint(r *rand.Rand) (float64, float64) {
	return b.minLon + r.Float64()*(b.maxLon-b.minLon), b.minLat + r.Float64()*(b.maxLat-b.minLat)
}

// appendRandomPoints appends a JSON array of n random points in b to buf.
func (b bbox) appendRandomPoints(buf []byte, r *rand.Rand, n int) []byte {
	buf = append(buf, '[')
	for i := range n {
		if i > 0 {
			buf = append(buf, ',')
		}
		lon, lat := b.randomPoint(r)
		buf = append(buf, '[')
		buf = strconv.AppendFloat(buf, lon, 'f', 6, 64)
		buf = append(buf, ',')
		buf = strconv.AppendFloat(buf, lat, 'f', 6, 64)
		buf = append(buf, ']')
	}
	return append(buf, ']')
}

type client struct {
	httpClient    *http.Client
	url           string
	authorization string
}

func (c *client) query(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.New(resp.Status)
	}
	return nil
}

func run() error {
	baseURL := flag.String("h", "http://127.0.0.1:8082", "base `URL` of the server")
	uri := flag.String("u", "/v1/elevations", "request `path`")
	authorization := flag.String("a", "", "Authorization `header`")
	clients := flag.Int("c", 50, "number of clients")
	requestsPerClient := flag.Int("r", 50, "requests per client")
	locationsPerRequest := flag.Int("l", 1000, "locations per request")
	bounds := bbox{}
	flag.Float64Var(&bounds.minLon, "min-lon", 121, "minimum longitude")
	flag.Float64Var(&bounds.minLat, "min-lat", 21, "minimum latitude")
	flag.Float64Var(&bounds.maxLon, "max-lon", 123, "maximum longitude")
	flag.Float64Var(&bounds.maxLat, "max-lat", 23, "maximum latitude")
	flag.Parse()

	if *baseURL == "" {
		flag.Usage()
		return errors.New("no base URL")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting",
		zap.String("url", *baseURL+*uri),
		zap.Int("clients", *clients),
		zap.Int("requestsPerClient", *requestsPerClient),
		zap.Int("locationsPerRequest", *locationsPerRequest),
	)

	var locations, requests, totalRTT atomic.Int64
	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	for i := range *clients {
		c := &client{
			httpClient:    &http.Client{},
			url:           *baseURL + *uri,
			authorization: *authorization,
		}
		r := rand.New(rand.NewPCG(uint64(i), uint64(start.UnixNano())))
		g.Go(func() error {
			var body []byte
			for j := range *requestsPerClient {
				body = bounds.appendRandomPoints(body[:0], r, *locationsPerRequest)
				requestStart := time.Now()
				if err := c.query(ctx, body); err != nil {
					return fmt.Errorf("client %d: request %d: %w", i, j+1, err)
				}
				totalRTT.Add(int64(time.Since(requestStart)))
				requests.Add(1)
				locations.Add(int64(*locationsPerRequest))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("aborted", zap.Int64("locations", locations.Load()), zap.Error(err))
		return err
	}

	elapsed := time.Since(start)
	fields := []zap.Field{
		zap.Int64("locations", locations.Load()),
		zap.Int64("requests", requests.Load()),
		zap.Duration("elapsed", elapsed),
	}
	if n := requests.Load(); n > 0 {
		fields = append(fields,
			zap.Duration("meanRTT", time.Duration(totalRTT.Load()/n)),
			zap.Float64("locationsPerSecond", float64(locations.Load())/elapsed.Seconds()),
		)
	}
	logger.Info("finished", fields...)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
