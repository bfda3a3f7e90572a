// Package health talks to the platform health-data service. Writes are best
// effort; nothing in the local write path depends on them.
package health

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/saadjs/kcal-core/internal/model"
)

// Sample is one nutrition data point exported after a meal is logged.
type Sample struct {
	LogID    uuid.UUID `json:"log_id"`
	At       time.Time `json:"at"`
	Name     string    `json:"name"`
	Calories float64   `json:"calories"`
	ProteinG float64   `json:"protein_g"`
	CarbsG   float64   `json:"carbs_g"`
	FatG     float64   `json:"fat_g"`
	// Deleted marks a retraction of an earlier sample for the same log.
	Deleted bool `json:"deleted,omitempty"`
}

func SampleOf(f model.FoodLog) Sample {
	return Sample{
		LogID:    f.ID,
		At:       f.LoggedAt,
		Name:     f.Name,
		Calories: f.Calories,
		ProteinG: f.ProteinG,
		CarbsG:   f.CarbsG,
		FatG:     f.FatG,
	}
}

// PhysicalMetrics are the latest body measurements known to the platform.
// Missing values are nil.
type PhysicalMetrics struct {
	WeightKg *float64            `json:"weight_kg,omitempty"`
	HeightCm *float64            `json:"height_cm,omitempty"`
	Age      *int                `json:"age,omitempty"`
	Sex      model.BiologicalSex `json:"sex,omitempty"`
}

type Writer interface {
	WriteNutritionSample(ctx context.Context, s Sample) error
}

type MetricsSource interface {
	FetchPhysicalMetrics(ctx context.Context) (PhysicalMetrics, error)
}

// Noop is used when no health service is configured.
type Noop struct{}

func (Noop) WriteNutritionSample(context.Context, Sample) error { return nil }

func (Noop) FetchPhysicalMetrics(context.Context) (PhysicalMetrics, error) {
	return PhysicalMetrics{}, nil
}

// Client is an HTTP bridge to the health service.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{Timeout: 5 * time.Second}
	}
	return c.HTTPClient
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode health request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	u := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create health request: %w: %w", model.ErrHealthService, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("execute health request: %w: %w", model.ErrHealthService, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read health response: %w: %w", model.ErrHealthService, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health %s %s failed with status %d: %w", method, path, resp.StatusCode, model.ErrHealthService)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode health response: %w: %w", model.ErrHealthService, err)
	}
	return nil
}

func (c *Client) WriteNutritionSample(ctx context.Context, s Sample) error {
	return c.do(ctx, http.MethodPost, "/v1/nutrition/samples", s, nil)
}

func (c *Client) FetchPhysicalMetrics(ctx context.Context) (PhysicalMetrics, error) {
	var m PhysicalMetrics
	if err := c.do(ctx, http.MethodGet, "/v1/metrics/physical", nil, &m); err != nil {
		return PhysicalMetrics{}, err
	}
	return m, nil
}
