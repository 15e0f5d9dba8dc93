package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"starkcron/internal/model"
)

// DefaultURL is the indexing endpoint that receives new events.
const DefaultURL = "https://starklens.vercel.app/api/indexer"

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("unexpected status")

// HTTPForwarder posts event batches to the indexing API.
type HTTPForwarder struct {
	URL    string
	HTTP   *http.Client
	Logger *zap.Logger
}

// NewHTTPForwarder builds an HTTPForwarder. A zero timeout leaves requests unbounded.
func NewHTTPForwarder(url string, timeout time.Duration, logger *zap.Logger) *HTTPForwarder {
	return &HTTPForwarder{
		URL:    url,
		HTTP:   &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

// Send posts the whole batch as {"items": [...]} in a single request.
func (f *HTTPForwarder) Send(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return fmt.Errorf("empty batch")
	}
	target := strings.TrimSpace(f.URL)
	if target == "" {
		target = DefaultURL
	}

	body, err := json.Marshal(model.Batch{Items: events})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("post batch: %w: http %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	f.logger().Info("forwarded events",
		zap.Int("events", len(events)),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

func (f *HTTPForwarder) httpClient() *http.Client {
	if f.HTTP != nil {
		return f.HTTP
	}
	return http.DefaultClient
}

func (f *HTTPForwarder) logger() *zap.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return zap.NewNop()
}
