package leadership

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contactfinder/internal/retryclient"
)

const tableAnswer = `Here is what I found:

| Name | Role | LinkedIn | Email | General Company Email |
|------|------|----------|-------|-----------------------|
| Jane Doe | CEO | linkedin.com/in/janedoe | jane.doe@acme.io | info@acme.io |
| John Roe | CTO | | | info@acme.io |

Sources: https://acme.io/about`

func newService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := retryclient.New(retryclient.Config{
		MaxAttempts:    2,
		RateLimitDelay: time.Millisecond,
		BaseDelay:      time.Millisecond,
		Timeout:        time.Second,
	}, srv.Client(), nil)
	return NewService(Config{BaseURL: srv.URL + "/", APIKey: "k-123", DefaultModel: "perplexity/sonar"}, client, nil)
}

func TestLookup_ParsesAnswer(t *testing.T) {
	t.Parallel()

	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k-123", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "perplexity/sonar", req.Model)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "user", req.Messages[0].Role)
			assert.Contains(t, req.Messages[0].Content, "**Acme**")
			assert.Contains(t, req.Messages[0].Content, "j.doe@acme.io")
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": tableAnswer}}},
		})
	})

	answer, err := svc.Lookup(context.Background(), Company{Name: "Acme", Website: "https://www.acme.io/about", Country: "US"}, "")
	require.NoError(t, err)
	require.Equal(t, "perplexity/sonar", answer.Model)
	require.NotNil(t, answer.Table)
	require.Equal(t, []string{"Name", "Role", "LinkedIn", "Email", "General Company Email"}, answer.Table.Headers)
	require.Len(t, answer.Table.Rows, 2)
	require.Equal(t, "jane.doe@acme.io", answer.Table.Records()[0]["Email"])
}

func TestLookup_RateLimitExhausted(t *testing.T) {
	t.Parallel()

	svc := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := svc.Lookup(context.Background(), Company{Name: "Acme", Website: "acme.io", Country: "US"}, "m")
	require.ErrorIs(t, err, retryclient.ErrRateLimitExhausted)
}

func TestLookup_EmptyAnswer(t *testing.T) {
	t.Parallel()

	svc := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := svc.Lookup(context.Background(), Company{Name: "Acme", Website: "acme.io", Country: "US"}, "m")
	require.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestLookup_Validation(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{APIKey: "k"}, nil, nil)
	_, err := svc.Lookup(context.Background(), Company{Name: "Acme"}, "")
	require.ErrorIs(t, err, ErrIncompleteCompany)

	noKey := NewService(Config{}, nil, nil)
	_, err = noKey.Lookup(context.Background(), Company{Name: "Acme", Website: "acme.io", Country: "US"}, "")
	require.ErrorIs(t, err, ErrMissingAPIKey)
	_, err = noKey.Models(context.Background())
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestModels_FiltersWebModels(t *testing.T) {
	t.Parallel()

	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"openai/gpt-4o"},{"id":"perplexity/sonar"},{"id":"meta/llama-online"}]}`))
	})
	models, err := svc.Models(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"perplexity/sonar", "meta/llama-online"}, models)
}

func TestPickModel(t *testing.T) {
	t.Parallel()

	got, err := PickModel([]string{"a-online", "perplexity/x"}, "perplexity/x")
	require.NoError(t, err)
	require.Equal(t, "perplexity/x", got)

	got, err = PickModel([]string{"a-online"}, "perplexity/x")
	require.NoError(t, err)
	require.Equal(t, "a-online", got)

	_, err = PickModel(nil, "perplexity/x")
	require.ErrorIs(t, err, ErrNoModels)
}

func TestParseTable_NoTable(t *testing.T) {
	t.Parallel()

	require.Nil(t, ParseTable("nothing tabular here"))
	require.Nil(t, (*Table)(nil).Records())
}
