// Package gemini implements the enhancement and analysis calls against
// the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"google.golang.org/genai"

	"github.com/resumatch/resumatch/internal/ai"
	"github.com/resumatch/resumatch/internal/domain"
)

const defaultModel = "gemini-2.0-flash"

//go:embed enhance_prompt.md
var enhanceSystemPrompt string

//go:embed analyze_prompt.md
var analyzeSystemPrompt string

// generateFunc matches genai's Models.GenerateContent and doubles as the
// test seam.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Config carries the connection and sampling settings for both calls.
type Config struct {
	APIKey         string
	EnhanceModel   string
	AnalyzeModel   string
	Temperature    float32
	RequestTimeout time.Duration
}

// Client wraps the Google GenAI client for the two model calls the
// pipeline makes.
type Client struct {
	generate     generateFunc
	enhanceModel string
	analyzeModel string
	temperature  float32
	timeout      time.Duration
	logger       *slog.Logger
}

// NewClient creates a Client configured for the Gemini API backend.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	client := &Client{
		generate:     genaiClient.Models.GenerateContent,
		enhanceModel: strings.TrimSpace(cfg.EnhanceModel),
		analyzeModel: strings.TrimSpace(cfg.AnalyzeModel),
		temperature:  cfg.Temperature,
		timeout:      cfg.RequestTimeout,
		logger:       logger,
	}
	if client.enhanceModel == "" {
		client.enhanceModel = defaultModel
	}
	if client.analyzeModel == "" {
		client.analyzeModel = defaultModel
	}
	return client, nil
}

// Enhance rewrites a raw job description into a structured one.
func (c *Client) Enhance(ctx context.Context, jobDescription string) (string, error) {
	prompt := fmt.Sprintf("Please enhance and structure this job description:\n\n%s", jobDescription)
	return c.generateText(ctx, c.enhanceModel, genai.Text(prompt), c.requestConfig(enhanceSystemPrompt))
}

// Analyze scores the resume page images against the enhanced job
// description and returns the parsed match report.
func (c *Client) Analyze(ctx context.Context, enhancedJobDescription string, imagePaths []string) (*domain.Analysis, error) {
	contents, err := buildAnalyzeContents(enhancedJobDescription, imagePaths)
	if err != nil {
		return nil, err
	}

	config := c.requestConfig(analyzeSystemPrompt)
	config.ResponseMIMEType = "application/json"

	raw, err := c.generateText(ctx, c.analyzeModel, contents, config)
	if err != nil {
		return nil, err
	}
	return ai.ParseAnalysis(raw)
}

func (c *Client) requestConfig(systemPrompt string) *genai.GenerateContentConfig {
	temperature := c.temperature
	return &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
	}
}

func (c *Client) generateText(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := c.generate(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	c.logger.Debug("Model call finished",
		slog.String("model", model),
		slog.Duration("duration", time.Since(started)),
	)

	output := collectText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return output, nil
}

// buildAnalyzeContents assembles the single user turn: the instruction
// text followed by one inline image per resume page, in page order.
func buildAnalyzeContents(enhancedJobDescription string, imagePaths []string) ([]*genai.Content, error) {
	parts := make([]*genai.Part, 0, len(imagePaths)+1)
	parts = append(parts, &genai.Part{
		Text: fmt.Sprintf("Job Description:\n%s\n\nPlease analyze the resume images below against this job description.", enhancedJobDescription),
	})

	for _, path := range imagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.NewStageError(domain.FailureInvalidState,
				fmt.Sprintf("resume image %s is not readable", filepath.Base(path)), err)
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: imageMIME(path), Data: data},
		})
	}

	return []*genai.Content{{Role: genai.RoleUser, Parts: parts}}, nil
}

func imageMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}

func collectText(resp *genai.GenerateContentResponse) string {
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}
