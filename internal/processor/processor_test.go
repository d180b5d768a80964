package processor

import (
	"context"
	"errors"
	"testing"

	"firestige.xyz/chainproto/internal/core"
	"firestige.xyz/chainproto/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorDigest_Success(t *testing.T) {
	fn := func(ctx context.Context, p Payload) (model.Data, error) {
		p.Data.Payload = "enriched"
		return p.Data, nil
	}
	p := New("svc-a", nil, fn)

	out, err := p.Digest(context.Background(), model.Data{Origin: "n1"})
	require.NoError(t, err)
	assert.Equal(t, "enriched", out.Payload)
}

func TestProcessorDigest_CallbackError(t *testing.T) {
	fn := func(ctx context.Context, p Payload) (model.Data, error) {
		return model.Data{}, errors.New("downstream unavailable")
	}
	p := New("svc-a", nil, fn)

	_, err := p.Digest(context.Background(), model.Data{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrProcessorFailure))
}

func TestProcessorDigest_NoCallbackIsTolerated(t *testing.T) {
	p := New("svc-a", nil, nil)
	out, err := p.Digest(context.Background(), model.Data{Payload: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, model.Data{}, out)
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	r.Register("svc-a", func(ctx context.Context, p Payload) (model.Data, error) {
		return p.Data, nil
	})

	p, err := r.Build(model.ServiceConfig{TargetID: "svc-a"})
	require.NoError(t, err)
	assert.Equal(t, "svc-a", p.Target())
}

func TestRegistryBuild_UnregisteredNonHTTPTargetIsTolerant(t *testing.T) {
	r := NewRegistry()
	p, err := r.Build(model.ServiceConfig{TargetID: "svc-missing"})
	require.NoError(t, err)

	out, err := p.Digest(context.Background(), model.Data{})
	require.NoError(t, err)
	assert.Equal(t, model.Data{}, out)
}

func TestRegistryBuild_FallsBackToHTTPCallbackForURLTargets(t *testing.T) {
	r := NewRegistry()
	p, err := r.Build(model.ServiceConfig{TargetID: "https://svc.example.com/process"})
	require.NoError(t, err)
	assert.Equal(t, "https://svc.example.com/process", p.Target())
}
