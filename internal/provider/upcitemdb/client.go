package upcitemdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/saadjs/kcal-core/internal/model"
)

const (
	Name           = "upcitemdb"
	defaultBaseURL = "https://api.upcitemdb.com"
)

// Client talks to UPCitemdb. Without an API key the rate-limited trial
// endpoints are used.
type Client struct {
	BaseURL    string
	APIKey     string
	APIKeyType string
	HTTPClient *http.Client
}

func (c *Client) Name() string { return Name }

func (c *Client) do(ctx context.Context, endpoint string, params url.Values) (response, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	tier := "trial"
	if strings.TrimSpace(c.APIKey) != "" {
		tier = "v1"
	}
	u := fmt.Sprintf("%s/prod/%s/%s?%s", base, tier, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return response{}, fmt.Errorf("create upcitemdb %s request: %w", endpoint, err)
	}
	if key := strings.TrimSpace(c.APIKey); key != "" {
		keyType := strings.TrimSpace(c.APIKeyType)
		if keyType == "" {
			keyType = "3scale"
		}
		req.Header.Set("key_type", keyType)
		req.Header.Set("user_key", key)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("execute upcitemdb %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("read upcitemdb %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response{}, fmt.Errorf("upcitemdb %s request failed with status %d", endpoint, resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return response{}, fmt.Errorf("decode upcitemdb %s response: %w", endpoint, err)
	}
	return parsed, nil
}

func (c *Client) LookupBarcode(ctx context.Context, barcode string) (model.FoodSearchResult, error) {
	parsed, err := c.do(ctx, "lookup", url.Values{"upc": {barcode}})
	if err != nil {
		return model.FoodSearchResult{}, err
	}
	if !strings.EqualFold(parsed.Code, "OK") || len(parsed.Items) == 0 {
		return model.FoodSearchResult{}, fmt.Errorf("upcitemdb barcode %q: %w", barcode, model.ErrNotFound)
	}
	r := toResult(parsed.Items[0])
	r.Barcode = barcode
	if r.SourceRef == "" {
		r.SourceRef = barcode
	}
	return r, nil
}

func (c *Client) SearchFoods(ctx context.Context, query string, limit int) ([]model.FoodSearchResult, error) {
	parsed, err := c.do(ctx, "search", url.Values{"s": {strings.TrimSpace(query)}, "type": {"product"}})
	if err != nil {
		return nil, err
	}
	out := make([]model.FoodSearchResult, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		out = append(out, toResult(it))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("upcitemdb query %q: %w", query, model.ErrNotFound)
	}
	return out, nil
}

func toResult(it item) model.FoodSearchResult {
	amount, unit := parseServing(it.Size)
	return model.FoodSearchResult{
		Name:        strings.TrimSpace(it.Title),
		Brand:       strings.TrimSpace(it.Brand),
		Calories:    parseNutrient(it.NutritionFacts, "calories"),
		ProteinG:    parseNutrient(it.NutritionFacts, "protein"),
		CarbsG:      parseNutrient(it.NutritionFacts, "total carbohydrate", "carbohydrate"),
		FatG:        parseNutrient(it.NutritionFacts, "total fat", "fat"),
		ServingSize: amount,
		ServingUnit: unit,
		Source:      Name,
		SourceRef:   strings.TrimSpace(it.UPC),
		Barcode:     strings.TrimSpace(it.UPC),
	}
}

func parseServing(size string) (float64, string) {
	parts := strings.Fields(strings.TrimSpace(size))
	if len(parts) >= 2 {
		if f, err := strconv.ParseFloat(strings.Trim(parts[0], ","), 64); err == nil && f > 0 {
			return f, parts[1]
		}
	}
	return 100, "g"
}

// parseNutrient tries exact label matches first, then the first label
// containing the last name that is not a sub-fraction such as saturated fat.
func parseNutrient(n map[string]any, names ...string) float64 {
	for _, name := range names {
		for k, v := range n {
			if strings.EqualFold(strings.TrimSpace(k), name) {
				if f, ok := numericPrefix(v); ok {
					return f
				}
			}
		}
	}
	contains := names[len(names)-1]
	for k, v := range n {
		lower := strings.ToLower(k)
		if !strings.Contains(lower, contains) || strings.Contains(lower, "saturated") || strings.Contains(lower, "trans") {
			continue
		}
		if f, ok := numericPrefix(v); ok {
			return f
		}
	}
	return 0
}

func numericPrefix(v any) (float64, bool) {
	s := fmt.Sprintf("%v", v)
	var filtered strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			filtered.WriteRune(r)
		}
	}
	f, err := strconv.ParseFloat(filtered.String(), 64)
	return f, err == nil
}

type response struct {
	Code  string `json:"code"`
	Items []item `json:"items"`
}

type item struct {
	Title          string         `json:"title"`
	Brand          string         `json:"brand"`
	UPC            string         `json:"upc"`
	Size           string         `json:"size"`
	NutritionFacts map[string]any `json:"nutrition_facts"`
}
