package model

import (
	"encoding/json"
	"errors"
	"testing"

	"firestige.xyz/chainproto/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeConfigUnmarshalJSON_BareAndObjectServices(t *testing.T) {
	raw := []byte(`{
		"index": 0,
		"count": 2,
		"location": "local",
		"services": ["svc-a", {"targetId": "svc-b", "meta": {"resolver": "round-robin"}}]
	}`)

	var n NodeConfig
	require.NoError(t, json.Unmarshal(raw, &n))

	require.Len(t, n.Services, 2)
	assert.Equal(t, "svc-a", n.Services[0].TargetID)
	assert.Nil(t, n.Services[0].Meta)
	assert.Equal(t, "svc-b", n.Services[1].TargetID)
	require.NotNil(t, n.Services[1].Meta)
	assert.Equal(t, "round-robin", n.Services[1].Meta.Resolver)
}

func TestChainConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ChainConfig
		wantErr bool
	}{
		{"empty chain", ChainConfig{}, true},
		{"no services", ChainConfig{{Location: LocationLocal}}, true},
		{
			"empty target id",
			ChainConfig{{Location: LocationLocal, Services: []ServiceConfig{{TargetID: ""}}}},
			true,
		},
		{
			"unknown location",
			ChainConfig{{Location: "nowhere", Services: []ServiceConfig{{TargetID: "svc"}}}},
			true,
		},
		{
			"valid",
			ChainConfig{{Location: LocationLocal, Services: []ServiceConfig{{TargetID: "svc"}}}},
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, core.ErrConfigInvalid))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestChainTypeBits(t *testing.T) {
	both := ChainTypePersistent | ChainTypeAutoDelete
	assert.True(t, both.HasPersistent())
	assert.True(t, both.HasAutoDelete())

	none := ChainType(0)
	assert.False(t, none.HasPersistent())
	assert.False(t, none.HasAutoDelete())

	reserved := ChainType(1 << 10)
	assert.False(t, reserved.HasPersistent())
	assert.False(t, reserved.HasAutoDelete())
}
