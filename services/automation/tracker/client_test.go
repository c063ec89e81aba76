package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	svcerrors "github.com/trackerflow/automation-engine/infrastructure/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"key":"ACME-1"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Email: "a@b.com", APIToken: "tok", RequestTimeout: time.Second})
	require.NoError(t, err)

	var out struct {
		Key string `json:"key"`
	}
	err = c.Do(context.Background(), http.MethodGet, "/issue/ACME-1", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "ACME-1", out.Key)
}

func TestClient_Do_MapsStatusToCategory(t *testing.T) {
	cases := []struct {
		status   int
		category svcerrors.Category
	}{
		{http.StatusUnauthorized, svcerrors.CategoryAuth},
		{http.StatusForbidden, svcerrors.CategoryPermission},
		{http.StatusNotFound, svcerrors.CategoryNotFound},
		{http.StatusBadRequest, svcerrors.CategoryValidation},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		c, err := New(Config{BaseURL: srv.URL, OAuthToken: "tok", RequestTimeout: time.Second, MaxRetries: 0})
		require.NoError(t, err)

		err = c.Do(context.Background(), http.MethodGet, "/issue/X", nil, nil)
		require.Error(t, err)
		assert.Equal(t, tc.category, svcerrors.GetCategory(err))
		srv.Close()
	}
}

func TestClient_Do_RetriesConnectionFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, OAuthToken: "tok", RequestTimeout: time.Second, MaxRetries: 3, RetryDelay: time.Millisecond})
	require.NoError(t, err)

	err = c.Do(context.Background(), http.MethodGet, "/issue/X", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}
