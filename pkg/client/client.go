// Package client is a typed client for the cellar HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/pkg/dto"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cellar api: %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// DrinkError is a drink the server could not record. Identified is set when
// the wine was recognised but is not in the collection; Wine when none are
// left.
type DrinkError struct {
	Status     int
	Message    string
	Identified *models.Identification
	Wine       *models.Wine
}

func (e *DrinkError) Error() string { return e.Message }

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. Requests time out after
// timeout; analysis calls wait on the recognition service, so allow for it.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) ListWines(ctx context.Context, q models.WineQuery) ([]models.Wine, error) {
	path := "/api/wines"
	if v := q.Values(); len(v) > 0 {
		path += "?" + v.Encode()
	}
	var wines []models.Wine
	err := c.doJSON(ctx, http.MethodGet, path, nil, &wines)
	return wines, err
}

func (c *Client) GetWine(ctx context.Context, id int64) (*models.Wine, error) {
	var w models.Wine
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/wines/%d", id), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) CreateWine(ctx context.Context, p models.WinePatch) (*models.Wine, error) {
	var w models.Wine
	if err := c.doJSON(ctx, http.MethodPost, "/api/wines", p, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) UpdateWine(ctx context.Context, id int64, p models.WinePatch) (*models.Wine, error) {
	var w models.Wine
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/wines/%d", id), p, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) AdjustQuantity(ctx context.Context, id int64, delta int) (*models.Wine, error) {
	var w models.Wine
	body := dto.QuantityRequest{Delta: &delta}
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/wines/%d/quantity", id), body, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) DeleteWine(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/wines/%d", id), nil, nil)
}

func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var st models.Stats
	if err := c.doJSON(ctx, http.MethodGet, "/api/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Analyze uploads a label photo. A recognition failure is not an error here:
// it comes back in Candidate.Error.
func (c *Client) Analyze(ctx context.Context, filename string, data []byte) (*models.Candidate, error) {
	resp, err := c.upload(ctx, "/api/analyze", filename, data)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var cand models.Candidate
	if err := json.NewDecoder(resp.Body).Decode(&cand); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	return &cand, nil
}

func (c *Client) AnalyzeClarified(ctx context.Context, req dto.ClarifyRequest) (*models.Candidate, error) {
	var cand models.Candidate
	if err := c.doJSON(ctx, http.MethodPost, "/api/analyze-clarified", req, &cand); err != nil {
		return nil, err
	}
	return &cand, nil
}

// Drink records one bottle drunk. Refusals come back as *DrinkError.
func (c *Client) Drink(ctx context.Context, filename string, data []byte) (*dto.DrinkResponse, error) {
	resp, err := c.upload(ctx, "/api/drink", filename, data)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read drink response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var de dto.DrinkError
		if json.Unmarshal(body, &de) == nil && de.Error != "" &&
			(resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest) {
			return nil, &DrinkError{Status: resp.StatusCode, Message: de.Error, Identified: de.Identified, Wine: de.Wine}
		}
		return nil, apiError(resp.StatusCode, body)
	}

	var out dto.DrinkResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode drink response: %w", err)
	}
	return &out, nil
}

func (c *Client) Pair(ctx context.Context, food string) (*models.PairingResult, error) {
	var res models.PairingResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/pair", dto.PairRequest{Food: food}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, path, filename string, data []byte) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return apiError(resp.StatusCode, body)
}

func apiError(status int, body []byte) error {
	var e dto.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return &APIError{Status: status, Message: e.Error}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
}
