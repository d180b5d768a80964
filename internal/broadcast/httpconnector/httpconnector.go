// Package httpconnector is the default broadcast.Connector: it speaks
// the HTTP+JSON wire contract a remote supervisor's transport/httpapi
// server exposes.
package httpconnector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"firestige.xyz/chainproto/internal/core"
	"firestige.xyz/chainproto/internal/eventbus"
	"firestige.xyz/chainproto/internal/metrics"
	"firestige.xyz/chainproto/internal/model"
)

// Connector is the default broadcast.Connector, an HTTP client against
// another supervisor's transport/httpapi endpoints.
type Connector struct {
	client *http.Client
}

// New builds a Connector with the given request timeout.
func New(timeout time.Duration) *Connector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Connector{client: &http.Client{Timeout: timeout}}
}

func (c *Connector) postJSON(ctx context.Context, kind, url string, in, out any) error {
	if err := c.doPostJSON(ctx, url, in, out); err != nil {
		metrics.BroadcastErrorsTotal.WithLabelValues("http", kind).Inc()
		return err
	}
	return nil
}

func (c *Connector) doPostJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", core.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", core.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s returned %d: %s", core.ErrTransport, url, resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", core.ErrTransport, err)
	}
	return nil
}

// baseURL normalizes a resolved host into a usable base URL. A host
// without a scheme (e.g. a bare "host:port" directory entry) defaults to
// plain HTTP; a host already carrying a scheme (the DefaultHostResolver's
// URL-parsing fallback) is used as-is, so a scheme is never prepended
// twice.
func baseURL(host string) string {
	host = strings.TrimSuffix(host, "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

// BroadcastSetup implements broadcast.BroadcastSetup.
func (c *Connector) BroadcastSetup(ctx context.Context, host string, cfg model.NodeConfig) error {
	url := baseURL(host) + "/node/communicate/setup"
	return c.postJSON(ctx, "setup", url, cfg, nil)
}

// BroadcastPre implements broadcast.BroadcastPre. The remote host runs
// the sub-chain and returns its resulting Data, which the caller folds
// into its own pre-stage merge.
func (c *Connector) BroadcastPre(ctx context.Context, host, chainID string, pre []model.NodeConfig) (model.Data, error) {
	url := baseURL(host) + "/node/pre"
	req := struct {
		ChainID string             `json:"chainId"`
		Pre     []model.NodeConfig `json:"pre"`
	}{ChainID: chainID, Pre: pre}

	var resp model.Data
	if err := c.postJSON(ctx, "pre", url, req, &resp); err != nil {
		return model.Data{}, err
	}
	return resp, nil
}

// Invoke implements broadcast.RemoteService.
func (c *Connector) Invoke(ctx context.Context, host, targetID, chainID string, data model.Data) (model.Data, error) {
	url := baseURL(host) + "/node/communicate/run"
	req := struct {
		TargetID string     `json:"targetId"`
		ChainID  string     `json:"chainId"`
		Data     model.Data `json:"data"`
	}{TargetID: targetID, ChainID: chainID, Data: data}

	var resp model.Data
	if err := c.postJSON(ctx, "invoke", url, req, &resp); err != nil {
		return model.Data{}, err
	}
	return resp, nil
}

// BroadcastStatus implements broadcast.NodeStatusBroadcast.
func (c *Connector) BroadcastStatus(ctx context.Context, host string, ev eventbus.StatusEvent) error {
	url := baseURL(host) + "/node/communicate/notify"
	return c.postJSON(ctx, "notify", url, ev, nil)
}
