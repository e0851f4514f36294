package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/contactfinder/internal/app"
	"github.com/JakeFAU/contactfinder/internal/config"
	"github.com/JakeFAU/contactfinder/internal/extractor"
	"github.com/JakeFAU/contactfinder/internal/leadership"
)

const contactPage = `<html><body>
<a href="mailto:sales@acme.com">Sales</a>
<p>Support: support@acme.com, Jane: jane.doe@acme.com</p>
<p>Ignore noreply@acme.com</p>
</body></html>`

func useTestApp(t *testing.T, mutate func(*config.Config)) {
	t.Helper()
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(ctx context.Context, _ string) (*app.App, error) {
		cfg, err := config.Load("")
		if err != nil {
			return nil, err
		}
		cfg.Browser.Enabled = false
		cfg.Extraction.RestrictPrivate = false
		cfg.Extraction.SitemapEnabled = false
		cfg.Extraction.PerHostQPS = 0
		cfg.AI.MinInterval = 0
		if mutate != nil {
			mutate(&cfg)
		}
		return app.New(ctx, cfg, zap.NewNop())
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func contactServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, contactPage)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractCSV(t *testing.T) {
	useTestApp(t, nil)
	srv := contactServer(t)

	out, err := run(t, "extract", srv.URL, "--mode", "static-only", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "Email,Category\n"+
		"jane.doe@acme.com,personal\n"+
		"sales@acme.com,sales\n"+
		"support@acme.com,support\n", out)
}

func TestExtractTXTToFile(t *testing.T) {
	useTestApp(t, nil)
	srv := contactServer(t)
	path := filepath.Join(t.TempDir(), "emails.txt")

	_, err := run(t, "extract", srv.URL, "--mode", "static-only", "--format", "txt", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@acme.com\nsales@acme.com\nsupport@acme.com\n", string(data))
}

func TestExtractJSON(t *testing.T) {
	useTestApp(t, nil)
	srv := contactServer(t)

	out, err := run(t, "extract", srv.URL, "--mode", "static-only", "--format", "json")
	require.NoError(t, err)

	var body struct {
		Mode   string `json:"mode"`
		Emails []struct {
			Email string `json:"email"`
		} `json:"emails"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "static-only", body.Mode)
	assert.Len(t, body.Emails, 3)
}

func TestExtractTable(t *testing.T) {
	useTestApp(t, nil)
	srv := contactServer(t)

	out, err := run(t, "extract", srv.URL, "--mode", "static-only", "--max-emails", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2 address(es)")
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "jane.doe@acme.com")
	assert.Contains(t, out, "note: truncated")
}

func TestExtractRejectsBadInput(t *testing.T) {
	useTestApp(t, nil)

	_, err := run(t, "extract", "https://acme.com", "--format", "xml")
	require.ErrorContains(t, err, "unknown format")

	_, err = run(t, "extract", "https://acme.com", "--mode", "turbo")
	require.ErrorContains(t, err, "unknown mode")

	_, err = run(t, "extract", "ftp://acme.com")
	require.ErrorIs(t, err, extractor.ErrInvalidURL)

	_, err = run(t, "extract")
	require.Error(t, err)
}

func TestExtractAllStrategiesFailed(t *testing.T) {
	useTestApp(t, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, "extract", srv.URL, "--mode", "static-only", "--format", "table")
	require.ErrorIs(t, err, extractor.ErrAllStrategiesFailed)
	assert.Contains(t, out, "fetch_failure")
}

func aiServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/models":
			fmt.Fprint(w, `{"data":[{"id":"perplexity/sonar-online"},{"id":"openai/gpt-4o"}]}`)
		case "/chat/completions":
			var req struct {
				Model string `json:"model"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			answer := fmt.Sprintf("Model %s says:\n\n| Name | Role |\n|---|---|\n| Jane Doe | CEO |", req.Model)
			resp := map[string]any{"choices": []any{map[string]any{"message": map[string]string{"content": answer}}}}
			assert.NoError(t, json.NewEncoder(w).Encode(resp))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestModels(t *testing.T) {
	ai := aiServer(t)
	useTestApp(t, func(c *config.Config) {
		c.AI.BaseURL = ai.URL
		c.AI.APIKey = "sk-test"
		c.AI.DefaultModel = "perplexity/sonar-online"
	})

	out, err := run(t, "models")
	require.NoError(t, err)
	assert.Equal(t, "* perplexity/sonar-online\n", out)
}

func TestLookupPicksListedModel(t *testing.T) {
	ai := aiServer(t)
	useTestApp(t, func(c *config.Config) {
		c.AI.BaseURL = ai.URL
		c.AI.APIKey = "sk-test"
		c.AI.DefaultModel = "perplexity/unlisted"
	})

	out, err := run(t, "lookup", "--company", "Acme", "--website", "https://acme.com", "--country", "US")
	require.NoError(t, err)
	assert.Contains(t, out, "Model perplexity/sonar-online says")

	out, err = run(t, "lookup", "--company", "Acme", "--website", "https://acme.com", "--country", "US",
		"--model", "custom/model", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "Name,Role\nJane Doe,CEO\n", out)
}

func TestLookupRequiresFlags(t *testing.T) {
	useTestApp(t, nil)

	_, err := run(t, "lookup", "--company", "Acme")
	require.Error(t, err)
}

func TestLookupWithoutKey(t *testing.T) {
	useTestApp(t, func(c *config.Config) { c.AI.APIKey = "" })

	_, err := run(t, "lookup", "--company", "Acme", "--website", "acme.com", "--country", "US", "--model", "m")
	require.ErrorIs(t, err, leadership.ErrMissingAPIKey)
}

func TestWriteAnswerTable(t *testing.T) {
	t.Parallel()

	answer := leadership.Answer{
		Model: "m",
		Raw:   "| Name | Role |\n|---|---|\n| Jane Doe | CEO |",
		Table: leadership.ParseTable("| Name | Role |\n|---|---|\n| Jane Doe | CEO |"),
	}
	var buf bytes.Buffer
	require.NoError(t, writeAnswer(&buf, answer, formatTable))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "Jane Doe")

	buf.Reset()
	require.NoError(t, writeAnswer(&buf, leadership.Answer{Raw: "no table here"}, formatTable))
	assert.Equal(t, "no table here\n", buf.String())

	require.Error(t, writeAnswer(&buf, leadership.Answer{Model: "m"}, formatCSV))
}

func TestCheckFormat(t *testing.T) {
	t.Parallel()

	f, err := checkFormat(" CSV ", formatCSV, formatJSON)
	require.NoError(t, err)
	assert.Equal(t, formatCSV, f)

	_, err = checkFormat("xml", formatCSV)
	require.Error(t, err)
}
