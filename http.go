package elevation

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const jsonContentType = "application/json; charset=utf-8"

// DefaultMaxRequestBytes is the default maximum size of a request body.
const DefaultMaxRequestBytes = 32 << 20

// An HTTPHandler serves the batch query protocol over HTTP. Requests must use
// the POST method with a JSON body.
type HTTPHandler struct {
	batchHandler    *BatchHandler
	logger          *zap.Logger
	maxRequestBytes int64
}

// An HTTPHandlerOption sets an option on an HTTPHandler.
type HTTPHandlerOption func(*HTTPHandler)

// WithHTTPLogger sets the logger used by an HTTPHandler.
func WithHTTPLogger(logger *zap.Logger) HTTPHandlerOption {
	return func(h *HTTPHandler) {
		h.logger = logger
	}
}

// WithMaxRequestBytes sets the maximum size of a request body. Larger requests
// are rejected with status 413.
func WithMaxRequestBytes(maxRequestBytes int64) HTTPHandlerOption {
	return func(h *HTTPHandler) {
		h.maxRequestBytes = maxRequestBytes
	}
}

// NewHTTPHandler returns a new HTTPHandler that queries registry.
func NewHTTPHandler(registry *Registry, options ...HTTPHandlerOption) *HTTPHandler {
	h := &HTTPHandler{
		batchHandler:    NewBatchHandler(registry),
		logger:          zap.NewNop(),
		maxRequestBytes: DefaultMaxRequestBytes,
	}
	for _, option := range options {
		option(h)
	}
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.error(w, http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxRequestBytes))
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesError):
		h.logger.Debug("request body too large", zap.Int64("limit", maxBytesError.Limit))
		h.error(w, http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		h.logger.Debug("cannot read request body", zap.Error(err))
		h.error(w, http.StatusBadRequest)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		h.error(w, http.StatusBadRequest)
		return
	}

	start := time.Now()
	response, n, err := h.batchHandler.handle(r.Context(), body)
	switch {
	case errors.Is(err, ErrMalformedInput):
		h.logger.Debug("malformed request", zap.Error(err))
		h.error(w, http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("lookup failed", zap.Error(err))
		h.error(w, http.StatusInternalServerError)
		return
	}
	h.logger.Debug("lookup",
		zap.Int("points", n),
		zap.Duration("duration", time.Since(start)),
	)

	if n > 0 {
		response = append(response, '\n')
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(response)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(response); err != nil {
		h.logger.Debug("cannot write response", zap.Error(err))
	}
	batchRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
}

func (h *HTTPHandler) error(w http.ResponseWriter, code int) {
	batchRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	http.Error(w, http.StatusText(code), code)
}
