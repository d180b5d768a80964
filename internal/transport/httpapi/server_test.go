package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"time"

	"firestige.xyz/chainproto/internal/eventbus"
	"firestige.xyz/chainproto/internal/model"
	"firestige.xyz/chainproto/internal/processor"
	"firestige.xyz/chainproto/internal/reporting"
	"firestige.xyz/chainproto/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *supervisor.Supervisor) {
	t.Helper()
	reg := processor.NewRegistry()
	reg.Register("svc-a", func(ctx context.Context, p processor.Payload) (model.Data, error) {
		return p.Data, nil
	})
	bus := eventbus.NewSignalBus(1, 8)
	monitor, err := reporting.NewMonitor(bus, time.Minute)
	require.NoError(t, err)
	sup := supervisor.New(supervisor.Config{
		UID:      "host-a",
		Registry: reg,
		Bus:      bus,
		Monitor:  monitor,
	})

	s := New("", sup)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/chain/create-and-start", s.handleChainCreateAndStart)
	mux.HandleFunc("/chain/status", s.handleChainStatus)
	mux.HandleFunc("/node/communicate/setup", s.handleNodeSetup)
	mux.HandleFunc("/node/pre", s.handleNodePre)
	mux.HandleFunc("/node/communicate/run", s.handleNodeRun)
	mux.HandleFunc("/node/communicate/notify", s.handleNodeNotify)
	mux.HandleFunc("/node/communicate/enqueue-status", s.handleNodeEnqueueStatus)
	mux.HandleFunc("/node/suspend", s.handleNodeSuspend)
	mux.HandleFunc("/node/resume", s.handleNodeResume)

	return httptest.NewServer(mux), sup
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buf).Encode(body))
	resp, err := http.Post(url, "application/json", buf)
	require.NoError(t, err)
	return resp
}

func localChain(chainID string) model.ChainConfig {
	return model.ChainConfig{
		{ChainID: chainID, Index: 0, Location: model.LocationLocal, Services: []model.ServiceConfig{{TargetID: "svc-a"}}},
		{ChainID: chainID, Index: 1, Location: model.LocationLocal, Services: []model.ServiceConfig{{TargetID: "svc-a"}}},
	}
}

func TestHandleHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleChainCreateAndStart(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/chain/create-and-start", chainCreateAndStartRequest{
		Chain: localChain("chain-1"),
		Data:  model.Data{Origin: "seed"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "chain-1", out["chainId"])
	assert.NotEmpty(t, out["message"])
}

func TestHandleChainCreateAndStart_InvalidConfigIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/chain/create-and-start", chainCreateAndStartRequest{
		Chain: model.ChainConfig{},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleChainStatus_MissingChainIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chain/status?chainId=does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleChainStatus_MissingQueryParamIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chain/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleNodeSetup(t *testing.T) {
	srv, sup := newTestServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/node/communicate/setup", model.NodeConfig{
		ChainID:  "chain-2",
		Index:    0,
		Location: model.LocationRemote,
		Services: []model.ServiceConfig{{TargetID: "svc-a"}},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotNil(t, sup)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out["nodeId"])
}

func TestHandleNodePre(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/node/pre", nodePreRequest{
		ChainID: "chain-3",
		Pre: []model.NodeConfig{
			{ChainID: "chain-3", Index: 0, Location: model.LocationLocal, Services: []model.ServiceConfig{{TargetID: "svc-a"}}},
		},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleNodeRun(t *testing.T) {
	srv, sup := newTestServer(t)
	defer srv.Close()

	require.NoError(t, sup.CreateChain(localChain("chain-4")))
	require.NoError(t, sup.DeployChain("chain-4"))

	resp := postJSON(t, srv.URL+"/node/communicate/run", nodeRunRequest{
		TargetID: "chain-4-0",
		ChainID:  "chain-4",
		Data:     model.Data{Origin: "seed"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleNodeNotify(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/node/communicate/notify", eventbus.StatusEvent{
		ChainID: "chain-5",
		NodeID:  "chain-5-0",
		Status:  "COMPLETED",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	statusResp, err := http.Get(srv.URL + "/chain/status?chainId=chain-5")
	require.NoError(t, err)
	defer statusResp.Body.Close()
	assert.Equal(t, http.StatusOK, statusResp.StatusCode)

	var summary reporting.Summary
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&summary))
	assert.Equal(t, "COMPLETED", summary.NodeStatus["chain-5-0"])
}

func TestHandleNodeEnqueueStatus_MissingNodeIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/node/communicate/enqueue-status", nodeEnqueueStatusRequest{
		ChainID: "chain-8",
		NodeID:  "chain-8-0",
		Signal:  "NODE_SUSPEND",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleNodeEnqueueStatus_MissingSignalIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/node/communicate/enqueue-status", nodeEnqueueStatusRequest{
		ChainID: "chain-8",
		NodeID:  "chain-8-0",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleNodeSuspendAndResume_MissingNodeIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/node/suspend", nodeSignalRequest{ChainID: "chain-6", NodeID: "chain-6-0"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
