package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ProjectFields_DedupsAcrossIssueTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"projects": [{
				"key": "ACME",
				"issuetypes": [
					{"fields": {"summary": {"required": true, "name": "Summary", "schema": {"type": "string"}}}},
					{"fields": {
						"summary": {"required": true, "name": "Summary", "schema": {"type": "string"}},
						"priority": {"required": false, "name": "Priority", "schema": {"type": "option"}, "allowedValues": [{"name": "High"}, {"name": "Low"}]}
					}}
				]
			}]
		}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Email: "a@b.com", APIToken: "tok", RequestTimeout: time.Second})
	require.NoError(t, err)

	fields, err := c.ProjectFields(context.Background(), "ACME")
	require.NoError(t, err)
	require.Len(t, fields, 2)

	byID := make(map[string]FieldMeta)
	for _, f := range fields {
		byID[f.ID] = f
	}
	assert.Equal(t, "string", byID["summary"].Type)
	assert.True(t, byID["summary"].Required)
	assert.ElementsMatch(t, []string{"High", "Low"}, byID["priority"].Allowed)
}
