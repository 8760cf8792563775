package textcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tipjar-social/contentcheck/moderation"
	"github.com/tipjar-social/contentcheck/util"

	"github.com/carlmjohnson/versioninfo"
	"github.com/rivo/uniseg"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// each input string is cut to this many user-perceived characters; zero means the default
	MaxInputGraphemes int
}

func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:           "https://api.openai.com/v1",
		Model:             "omni-moderation-latest",
		MaxInputGraphemes: 8000,
	}
}

// Text verifier backed by the OpenAI moderation API. Confidence is one minus the highest category score across all inputs.
type OpenAIVerifier struct {
	Config OpenAIConfig
	Client *http.Client
	Logger *slog.Logger
}

var _ moderation.TextVerifier = (*OpenAIVerifier)(nil)

func NewOpenAIVerifier(config OpenAIConfig) *OpenAIVerifier {
	def := DefaultOpenAIConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.MaxInputGraphemes <= 0 {
		config.MaxInputGraphemes = def.MaxInputGraphemes
	}
	return &OpenAIVerifier{
		Config: config,
		Client: util.NewHTTPClient(util.ClientOptions{
			Service:      "openai",
			RetryMax:     2,
			RetryWaitMin: 500 * time.Millisecond,
			RetryWaitMax: 5 * time.Second,
			Timeout:      30 * time.Second,
		}),
		Logger: slog.Default().With("verifier", "openai"),
	}
}

type openAIModerationRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type openAIModerationResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Renders the label sequence as a single line of text for the moderation model
func labelsInput(labels []string) string {
	return "image labels: " + strings.Join(labels, ", ")
}

// Cuts s after limit grapheme clusters, so combining marks and emoji sequences are never split. A limit of zero or less leaves s untouched.
func truncateGraphemes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	gr := uniseg.NewGraphemes(s)
	n := 0
	for gr.Next() {
		if n == limit {
			from, _ := gr.Positions()
			return s[:from]
		}
		n++
	}
	return s
}

func (v *OpenAIVerifier) Verify(ctx context.Context, title, description string, labels []string) moderation.VerificationResult {
	start := time.Now()
	defer func() {
		verifierDuration.WithLabelValues("openai").Observe(time.Since(start).Seconds())
	}()

	confidence, err := v.score(ctx, title, description, labels)
	if err != nil {
		verifierCount.WithLabelValues("openai", "error").Inc()
		v.logger().Warn("openai-moderation-failed", "err", err)
		return moderation.VerificationResult{Success: false}
	}
	verifierCount.WithLabelValues("openai", "ok").Inc()
	return moderation.VerificationResult{Success: true, Confidence: confidence}
}

func (v *OpenAIVerifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

func (v *OpenAIVerifier) score(ctx context.Context, title, description string, labels []string) (float64, error) {
	input := []string{title, description}
	if len(labels) > 0 {
		input = append(input, labelsInput(labels))
	}
	limit := v.Config.MaxInputGraphemes
	if limit <= 0 {
		limit = DefaultOpenAIConfig().MaxInputGraphemes
	}
	for i := range input {
		input[i] = truncateGraphemes(input[i], limit)
	}

	payload, err := json.Marshal(openAIModerationRequest{Model: v.Config.Model, Input: input})
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/moderations", strings.TrimRight(v.Config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.Config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "contentcheck/"+versioninfo.Short())

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("moderation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("moderation error: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	var oResp openAIModerationResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(oResp.Results) == 0 {
		return 0, fmt.Errorf("moderation response had no results")
	}

	var worst float64
	var flagged []string
	for _, r := range oResp.Results {
		for cat, score := range r.CategoryScores {
			if score > worst {
				worst = score
			}
			if r.Categories[cat] {
				flagged = append(flagged, cat)
			}
		}
	}
	v.logger().Info("openai-moderation", "model", oResp.Model, "worst", worst, "flagged", flagged)
	return clamp(1 - worst), nil
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
