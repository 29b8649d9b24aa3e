package mapdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the remote source has failed too often and is not being called.
var ErrCircuitOpen = errors.New("map data circuit breaker is open")

// HTTPSourceConfig holds configuration for a remote map-data source.
type HTTPSourceConfig struct {
	// URL serves an Overpass-style JSON document (optionally gzipped when it ends in .gz).
	URL string

	// Timeout bounds each HTTP call.
	// Default: 60 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of retries after the first attempt.
	// Default: 3
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 500ms
	InitialInterval time.Duration

	// MaxInterval caps the retry backoff interval.
	// Default: 10 seconds
	MaxInterval time.Duration

	// BreakerTimeout is how long the circuit stays open before a trial request.
	// Default: 60 seconds
	BreakerTimeout time.Duration

	Logger zerolog.Logger
}

// HTTPSource fetches map data over HTTP with retries and a circuit breaker.
type HTTPSource struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	config  HTTPSourceConfig
	logger  zerolog.Logger
}

// NewHTTPSource creates a remote source.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}

	s := &HTTPSource{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: cfg.Logger,
	}

	s.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        s.Name(),
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn().
				Str("source", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("map data circuit breaker state changed")
		},
	})

	return s
}

// Name returns the source identifier.
func (s *HTTPSource) Name() string {
	return "http:" + s.url
}

// CircuitState reports the breaker state for status endpoints.
func (s *HTTPSource) CircuitState() gobreaker.State {
	return s.breaker.State()
}

// Version issues a HEAD request and uses the ETag, falling back to Last-Modified.
// Servers sending neither yield an empty version.
func (s *HTTPSource) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, http.NoBody)
	if err != nil {
		return "", loadError(s.Name(), "version", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", loadError(s.Name(), "version", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", loadError(s.Name(), "version", &StatusError{StatusCode: resp.StatusCode})
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		return etag, nil
	}
	return resp.Header.Get("Last-Modified"), nil
}

// Load downloads and decodes the document.
func (s *HTTPSource) Load(ctx context.Context) (*Dataset, error) {
	body, err := s.fetch(ctx)
	if err != nil {
		return nil, loadError(s.Name(), "fetch", err)
	}

	var r io.Reader = bytes.NewReader(body)
	if strings.HasSuffix(strings.ToLower(s.url), ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, loadError(s.Name(), "gunzip", err)
		}
		defer gz.Close()
		r = gz
	}

	ds, err := DecodeOverpass(r)
	if err != nil {
		return nil, loadError(s.Name(), "decode", err)
	}
	return ds, nil
}

// fetch retries transient failures (network errors, 5xx) with exponential backoff.
// Client errors and an open circuit stop retrying immediately.
func (s *HTTPSource) fetch(ctx context.Context) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.config.InitialInterval
	bo.MaxInterval = s.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, s.config.MaxRetries), ctx)

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		b, err := s.breaker.Execute(func() ([]byte, error) {
			return s.get(ctx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			s.logger.Warn().Err(err).Int("attempt", attempt).Msg("map data fetch failed")
			return err
		}
		body = b
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (s *HTTPSource) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// StatusError is a non-2xx response from the remote source.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
