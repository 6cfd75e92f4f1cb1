package elevation

import (
	"bytes"
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var emptyBatchResponse = []byte("[]")

// A BatchHandler answers batches of point queries encoded as JSON. A request
// is an array of [x, y] pairs in the Registry's query SRS and the response is
// an array of altitudes in the same order, with null where there is no data.
type BatchHandler struct {
	registry *Registry
}

// NewBatchHandler returns a new BatchHandler that queries registry.
func NewBatchHandler(registry *Registry) *BatchHandler {
	return &BatchHandler{
		registry: registry,
	}
}

// Handle returns the response to the request in body. Malformed requests
// return an error wrapping ErrMalformedInput and no partial response.
func (h *BatchHandler) Handle(ctx context.Context, body []byte) ([]byte, error) {
	response, _, err := h.handle(ctx, body)
	return response, err
}

// handle is Handle but also returns the number of points queried.
func (h *BatchHandler) handle(ctx context.Context, body []byte) ([]byte, int, error) {
	start := time.Now()

	points, err := DecodePoints(body)
	if err != nil {
		return nil, 0, err
	}
	batchPoints.Observe(float64(len(points)))
	if len(points) == 0 {
		return emptyBatchResponse, 0, nil
	}

	altitudes := make([]*float64, len(points))
	for i, point := range points {
		if altitude, ok := h.registry.Altitude(ctx, point[0], point[1]); ok {
			altitudes[i] = &altitude
		}
	}

	response, err := json.Marshal(altitudes)
	if err != nil {
		return nil, 0, err
	}
	batchDuration.Observe(time.Since(start).Seconds())
	return response, len(points), nil
}

// DecodePoints decodes a JSON array of [x, y] pairs.
func DecodePoints(body []byte) ([][2]float64, error) {
	if trimmed := bytes.TrimLeft(body, " \t\r\n"); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected array", ErrMalformedInput)
	}
	var elements [][]*float64
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	points := make([][2]float64, len(elements))
	for i, element := range elements {
		if len(element) != 2 || element[0] == nil || element[1] == nil {
			return nil, fmt.Errorf("%w: element %d: expected [x, y]", ErrMalformedInput, i)
		}
		points[i] = [2]float64{*element[0], *element[1]}
	}
	return points, nil
}
