// Package leadership asks a web-connected language model for an
// organization's leadership contacts.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/contactfinder/internal/logging"
	"github.com/JakeFAU/contactfinder/internal/retryclient"
	"github.com/JakeFAU/contactfinder/internal/urlnorm"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("ai api key is not configured")
	// ErrEmptyAnswer is returned when the model replied without content.
	ErrEmptyAnswer = errors.New("model returned no answer")
	// ErrNoModels is returned when no web-connected model is listed.
	ErrNoModels = errors.New("no web-connected models available")
	// ErrIncompleteCompany is returned when a lookup lacks a required field.
	ErrIncompleteCompany = errors.New("company name, website and country are required")
)

// Company identifies the organization to research.
type Company struct {
	Name    string `json:"company"`
	Website string `json:"website"`
	Country string `json:"country"`
}

// Answer is the model reply and, when present, its parsed table.
type Answer struct {
	Model string `json:"model"`
	Raw   string `json:"raw"`
	Table *Table `json:"table,omitempty"`
}

// Config configures the Service.
type Config struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
}

// Doer is the subset of retryclient.Client the Service uses.
type Doer interface {
	GetJSON(ctx context.Context, url string, header http.Header, out any) error
	PostJSON(ctx context.Context, url string, header http.Header, in, out any) error
}

// Service talks to an OpenAI-compatible chat completion API.
type Service struct {
	cfg    Config
	client Doer
	logger *zap.Logger
}

// NewService builds a Service.
func NewService(cfg Config, client Doer, logger *zap.Logger) *Service {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{cfg: cfg, client: client, logger: logging.OrNop(logger)}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Lookup asks model for the company's leadership contacts. An empty model
// uses the configured default.
func (s *Service) Lookup(ctx context.Context, company Company, model string) (Answer, error) {
	if s.cfg.APIKey == "" {
		return Answer{}, ErrMissingAPIKey
	}
	if strings.TrimSpace(company.Name) == "" || strings.TrimSpace(company.Website) == "" ||
		strings.TrimSpace(company.Country) == "" {
		return Answer{}, ErrIncompleteCompany
	}
	if model == "" {
		model = s.cfg.DefaultModel
	}
	req := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: Prompt(company)}},
	}
	var resp chatResponse
	if err := s.client.PostJSON(ctx, s.cfg.BaseURL+"/chat/completions", s.authHeader(), req, &resp); err != nil {
		return Answer{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Answer{}, ErrEmptyAnswer
	}
	raw := resp.Choices[0].Message.Content
	s.logger.Info("leadership lookup answered",
		zap.String("company", company.Name),
		zap.String("model", model),
		zap.Int("answer_bytes", len(raw)),
	)
	return Answer{Model: model, Raw: raw, Table: ParseTable(raw)}, nil
}

// Models lists the web-connected models offered by the API.
func (s *Service) Models(ctx context.Context) ([]string, error) {
	if s.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	var list modelList
	if err := s.client.GetJSON(ctx, s.cfg.BaseURL+"/models", s.authHeader(), &list); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	var out []string
	for _, m := range list.Data {
		if strings.Contains(m.ID, "perplexity") || strings.Contains(m.ID, "online") {
			out = append(out, m.ID)
		}
	}
	return out, nil
}

// PickModel returns preferred if it is listed, else the first model.
func PickModel(models []string, preferred string) (string, error) {
	if len(models) == 0 {
		return "", ErrNoModels
	}
	if slices.Contains(models, preferred) {
		return preferred, nil
	}
	return models[0], nil
}

// Prompt renders the research request for company.
func Prompt(company Company) string {
	domain := urlnorm.Domain(company.Website)
	return fmt.Sprintf(`You're a research AI with browsing capability. Find publicly listed or known C-level, Director, or Department Head contact info
for **%s** (website: %s) based in %s. Use LinkedIn, company websites, or articles.

Return a markdown table with:
- Name | Role | LinkedIn | Email | General Company Email

If something is not found, leave it blank or guess a format like j.doe@%s.
Please cite source URLs under the table.
`, company.Name, company.Website, company.Country, domain)
}

func (s *Service) authHeader() http.Header {
	return http.Header{"Authorization": {"Bearer " + s.cfg.APIKey}}
}

var _ Doer = (*retryclient.Client)(nil)
