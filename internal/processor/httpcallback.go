package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"firestige.xyz/chainproto/internal/core"
	"firestige.xyz/chainproto/internal/model"
)

// NewHTTPCallback builds a ProcessCallback bound to a fixed external
// endpoint: it POSTs the running Data envelope to url and decodes the
// response body as the next Data envelope. Registry.Build falls back to
// it, built on demand, for services whose targetId is an http(s) URL
// with no callback registered for it.
func NewHTTPCallback(url string, timeout time.Duration) ProcessCallback {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, p Payload) (model.Data, error) {
		body, err := json.Marshal(p.Data)
		if err != nil {
			return model.Data{}, fmt.Errorf("%w: marshal payload: %v", core.ErrTransport, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return model.Data{}, fmt.Errorf("%w: build request: %v", core.ErrTransport, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return model.Data{}, fmt.Errorf("%w: %v", core.ErrTransport, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return model.Data{}, fmt.Errorf("%w: http callback status %d", core.ErrTransport, resp.StatusCode)
		}

		var out model.Data
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return model.Data{}, fmt.Errorf("%w: decode response: %v", core.ErrTransport, err)
		}
		return out, nil
	}
}
