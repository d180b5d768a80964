package httpconnector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firestige.xyz/chainproto/internal/eventbus"
	"firestige.xyz/chainproto/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnector_BroadcastSetup(t *testing.T) {
	var gotPath string
	var gotBody model.NodeConfig

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(time.Second)
	host := strings.TrimPrefix(srv.URL, "http://")

	err := c.BroadcastSetup(t.Context(), host, model.NodeConfig{Index: 2, Location: model.LocationRemote})
	require.NoError(t, err)
	assert.Equal(t, "/node/communicate/setup", gotPath)
	assert.Equal(t, 2, gotBody.Index)
}

func TestConnector_Invoke_ReturnsDecodedData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.Data{Origin: "remote-node"})
	}))
	defer srv.Close()

	c := New(time.Second)
	host := strings.TrimPrefix(srv.URL, "http://")

	out, err := c.Invoke(t.Context(), host, "svc-a", "chain-1", model.Data{Origin: "local-node"})
	require.NoError(t, err)
	assert.Equal(t, "remote-node", out.Origin)
}

func TestConnector_NonSuccessStatusIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(time.Second)
	host := strings.TrimPrefix(srv.URL, "http://")

	err := c.BroadcastStatus(t.Context(), host, eventbus.StatusEvent{ChainID: "chain-1"})
	require.Error(t, err)
}
