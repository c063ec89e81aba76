package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainwebhook "github.com/trackerflow/automation-engine/domain/webhook"
)

func TestRegistry_RegisterAssignsIDAndDefaultRetryPolicy(t *testing.T) {
	r := NewRegistry()
	integ := r.Register(domainwebhook.Integration{Name: "slack", URL: "https://example.com/hook", Enabled: true})
	assert.NotEmpty(t, integ.ID)
	assert.Equal(t, domainwebhook.DefaultRetryPolicy(), integ.RetryPolicy)

	got, ok := r.Get(integ.ID)
	require.True(t, ok)
	assert.Equal(t, "slack", got.Name)
}

func TestRegistry_UpdateAndDelete(t *testing.T) {
	r := NewRegistry()
	integ := r.Register(domainwebhook.Integration{Name: "slack", Enabled: true})

	_, err := r.Update(integ.ID, func(i *domainwebhook.Integration) { i.Enabled = false })
	require.NoError(t, err)
	got, _ := r.Get(integ.ID)
	assert.False(t, got.Enabled)

	r.Delete(integ.ID)
	_, ok := r.Get(integ.ID)
	assert.False(t, ok)
}

func TestDispatcher_Test_SendsSynthetic(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := NewRegistry()
	integ := registry.Register(domainwebhook.Integration{URL: srv.URL, Enabled: true})
	d := New(registry, srv.Client(), nil)

	err := d.Test(context.Background(), integ.ID)
	require.NoError(t, err)
	assert.True(t, hit)
}
