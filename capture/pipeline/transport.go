package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/uxtrace/uxtrace/models"
)

// Transport delivers one batch to the collector. A nil return means the
// batch is durably accepted; any error means the caller must keep the
// events for retry.
type Transport interface {
	Send(ctx context.Context, batch models.BatchRequest) error
}

// HTTPTransport posts batches as JSON to the collector endpoint.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport creates a transport for the given endpoint. The client
// timeout bounds how long a final synchronous flush can take on stop.
func NewHTTPTransport(endpoint string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTransport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, batch models.BatchRequest) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector rejected batch: status %d", resp.StatusCode)
	}
	return nil
}
