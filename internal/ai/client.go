package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/your-org/cellar/internal/config"
	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/internal/observability"
)

var ErrNotConfigured = errors.New("recognition service is not configured")

// Client talks to the Anthropic Messages API. Every method reports failures in
// its result value; none of them retry.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	version   string
	maxTokens int
	maxDim    int
	timeout   time.Duration
	http      *http.Client
}

func NewClient(cfg config.AIConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		version:   cfg.Version,
		maxTokens: cfg.MaxTokens,
		maxDim:    cfg.MaxImageDimension,
		timeout:   cfg.Timeout,
		http:      &http.Client{},
	}
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func imageBlock(data []byte, mediaType string) contentBlock {
	return contentBlock{
		Type: "image",
		Source: &imageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(data),
		},
	}
}

func textBlock(text string) contentBlock {
	return contentBlock{Type: "text", Text: text}
}

// complete sends one user turn and returns the concatenated text reply.
func (c *Client) complete(ctx context.Context, op string, content ...contentBlock) (string, error) {
	start := time.Now()
	text, err := c.send(ctx, content)
	observability.AIDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		slog.Warn("recognition call failed", "op", op, "error", err)
	}
	observability.AIRequests.WithLabelValues(op, outcome).Inc()
	return text, err
}

func (c *Client) send(ctx context.Context, content []contentBlock) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []message{{Role: "user", Content: content}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.version)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call messages api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out messagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil {
			return "", fmt.Errorf("messages api %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("messages api returned status %d", resp.StatusCode)
	}

	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("empty reply from messages api")
	}
	return b.String(), nil
}

// failure turns a transport error into the message shown to the user.
func failure(err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return "Wine recognition is not configured"
	case errors.Is(err, context.DeadlineExceeded):
		return "The recognition service timed out"
	default:
		return fmt.Sprintf("API error: %v", err)
	}
}

// Analyze reads a label photo into a candidate record. A non-empty styleHint is
// the owner's answer to a style clarification and overrides the model's style.
func (c *Client) Analyze(ctx context.Context, image []byte, mediaType, styleHint string) *models.Candidate {
	if len(image) == 0 {
		return models.ErrorCandidate("No image provided")
	}
	data, mediaType := prepareImage(image, mediaType, c.maxDim)

	prompt := analysisPrompt
	op := "analyze"
	if styleHint != "" {
		prompt += fmt.Sprintf(clarifiedSuffix, styleHint)
		op = "analyze_clarified"
	}

	reply, err := c.complete(ctx, op, imageBlock(data, mediaType), textBlock(prompt))
	if err != nil {
		return models.ErrorCandidate(failure(err))
	}

	raw, err := extractObject(reply)
	if err != nil {
		return models.ErrorCandidate(fmt.Sprintf("Failed to parse AI response: %v", err))
	}
	cand := cleanCandidate(raw)
	if styleHint != "" && !cand.Failed() {
		applyStyleHint(cand, styleHint)
	}
	return cand
}

// applyStyleHint records the confirmed style and drops the style question.
func applyStyleHint(cand *models.Candidate, hint string) {
	if s, ok := models.CanonicalStyle(hint); ok {
		cand.Style = s
	} else {
		cand.Style = strings.TrimSpace(hint)
	}
	kept := cand.ClarificationQuestions[:0]
	for _, q := range cand.ClarificationQuestions {
		lq := strings.ToLower(q)
		if strings.Contains(lq, "red or white") || strings.Contains(lq, "style") || strings.Contains(lq, "color") || strings.Contains(lq, "colour") {
			continue
		}
		kept = append(kept, q)
	}
	cand.ClarificationQuestions = kept
	cand.NeedsClarification = len(kept) > 0
}

// Identify reads just enough of a label to find the bottle in the collection.
func (c *Client) Identify(ctx context.Context, image []byte, mediaType string) *models.Identification {
	if len(image) == 0 {
		return &models.Identification{Error: "No image provided"}
	}
	data, mediaType := prepareImage(image, mediaType, c.maxDim)

	reply, err := c.complete(ctx, "identify", imageBlock(data, mediaType), textBlock(identifyPrompt))
	if err != nil {
		return &models.Identification{Error: failure(err)}
	}
	raw, err := extractObject(reply)
	if err != nil {
		return &models.Identification{Error: fmt.Sprintf("Failed to parse AI response: %v", err)}
	}
	return cleanIdentification(raw)
}

type pairingWine struct {
	ID             int64    `json:"wine_id"`
	Name           string   `json:"name"`
	Producer       string   `json:"producer,omitempty"`
	Vintage        *int     `json:"vintage,omitempty"`
	Style          string   `json:"style,omitempty"`
	Country        string   `json:"country,omitempty"`
	Region         string   `json:"region,omitempty"`
	GrapeVarieties []string `json:"grape_varieties,omitempty"`
	Quantity       int      `json:"quantity"`
	WindowStart    *int     `json:"drinking_window_start,omitempty"`
	WindowEnd      *int     `json:"drinking_window_end,omitempty"`
}

// SuggestPairings asks for wines from collection that suit food. Suggestions
// naming a wine_id outside collection are dropped.
func (c *Client) SuggestPairings(ctx context.Context, food string, collection []models.Wine) *models.PairingResult {
	food = strings.TrimSpace(food)
	if food == "" {
		return &models.PairingResult{Error: "Please describe the food"}
	}
	if len(collection) == 0 {
		return &models.PairingResult{Error: "Your collection is empty"}
	}

	snapshot := make([]pairingWine, len(collection))
	for i, w := range collection {
		snapshot[i] = pairingWine{
			ID: w.ID, Name: w.Name, Producer: w.Producer, Vintage: w.Vintage, Style: w.Style,
			Country: w.Country, Region: w.Region, GrapeVarieties: w.GrapeVarieties, Quantity: w.Quantity,
			WindowStart: w.DrinkingWindowStart, WindowEnd: w.DrinkingWindowEnd,
		}
	}
	list, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return &models.PairingResult{Error: fmt.Sprintf("encode collection: %v", err)}
	}

	reply, err := c.complete(ctx, "pair", textBlock(fmt.Sprintf(pairingPrompt, food, list)))
	if err != nil {
		return &models.PairingResult{Error: failure(err)}
	}
	raw, err := extractObject(reply)
	if err != nil {
		return &models.PairingResult{Error: fmt.Sprintf("Failed to parse AI response: %v", err)}
	}
	return cleanPairing(raw, collection)
}
