package openfoodfacts

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
	Name           = "openfoodfacts"
	defaultBaseURL = "https://world.openfoodfacts.org"
	userAgent      = "kcal-core/1.0 (+https://github.com/saadjs/kcal-core)"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) Name() string { return Name }

func (c *Client) base() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return defaultBaseURL
	}
	return base
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{Timeout: 12 * time.Second}
	}
	return c.HTTPClient
}

func (c *Client) get(ctx context.Context, what, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create openfoodfacts %s request: %w", what, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute openfoodfacts %s request: %w", what, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openfoodfacts %s response: %w", what, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("openfoodfacts %s: %w", what, model.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openfoodfacts %s request failed with status %d", what, resp.StatusCode)
	}
	return body, nil
}

func (c *Client) LookupBarcode(ctx context.Context, barcode string) (model.FoodSearchResult, error) {
	body, err := c.get(ctx, "barcode", fmt.Sprintf("%s/api/v2/product/%s.json", c.base(), url.PathEscape(barcode)))
	if err != nil {
		return model.FoodSearchResult{}, err
	}

	var parsed offResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.FoodSearchResult{}, fmt.Errorf("decode openfoodfacts response: %w", err)
	}
	if parsed.Status != 1 || strings.TrimSpace(parsed.Product.ProductName) == "" {
		return model.FoodSearchResult{}, fmt.Errorf("openfoodfacts barcode %q: %w", barcode, model.ErrNotFound)
	}
	r := toResult(parsed.Product)
	r.Barcode = barcode
	if r.SourceRef == "" {
		r.SourceRef = barcode
	}
	return r, nil
}

func (c *Client) SearchFoods(ctx context.Context, query string, limit int) ([]model.FoodSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	u := fmt.Sprintf("%s/cgi/search.pl?search_terms=%s&search_simple=1&action=process&json=1&page_size=%d",
		c.base(),
		url.QueryEscape(strings.TrimSpace(query)),
		limit,
	)
	body, err := c.get(ctx, "search", u)
	if err != nil {
		return nil, err
	}
	var parsed offSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode openfoodfacts search response: %w", err)
	}
	out := make([]model.FoodSearchResult, 0, len(parsed.Products))
	for _, p := range parsed.Products {
		if strings.TrimSpace(p.ProductName) == "" {
			continue
		}
		out = append(out, toResult(p))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("openfoodfacts query %q: %w", query, model.ErrNotFound)
	}
	return out, nil
}

func toResult(p offProduct) model.FoodSearchResult {
	servingAmount, servingUnit := parseServing(p)
	ref := strings.TrimSpace(p.Code)
	if ref == "" {
		ref = strings.TrimSpace(p.ID)
	}
	return model.FoodSearchResult{
		Name:        strings.TrimSpace(p.ProductName),
		Brand:       strings.TrimSpace(p.Brands),
		Calories:    nutrientValue(p.Nutriments, "energy-kcal"),
		ProteinG:    nutrientValue(p.Nutriments, "proteins"),
		CarbsG:      nutrientValue(p.Nutriments, "carbohydrates"),
		FatG:        nutrientValue(p.Nutriments, "fat"),
		ServingSize: servingAmount,
		ServingUnit: servingUnit,
		Source:      Name,
		SourceRef:   ref,
		Barcode:     strings.TrimSpace(p.Code),
	}
}

// nutrientValue prefers per-serving values and falls back to per-100g.
func nutrientValue(n map[string]any, base string) float64 {
	for _, key := range []string{base + "_serving", base + "_100g"} {
		if v, ok := parseFloatAny(n[key]); ok {
			return v
		}
	}
	return 0
}

func parseFloatAny(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseServing(p offProduct) (float64, string) {
	if p.ServingQuantity > 0 {
		unit := strings.TrimSpace(p.ServingQuantityUnit)
		if unit == "" {
			unit = "g"
		}
		return p.ServingQuantity, unit
	}
	if strings.TrimSpace(p.ServingSize) != "" {
		parts := strings.Fields(strings.TrimSpace(p.ServingSize))
		if len(parts) >= 2 {
			if val, err := strconv.ParseFloat(strings.ReplaceAll(parts[0], ",", ""), 64); err == nil && val > 0 {
				return val, parts[1]
			}
		}
	}
	return 100, "g"
}

type offResponse struct {
	Status  int        `json:"status"`
	Product offProduct `json:"product"`
}

type offProduct struct {
	ID                  string         `json:"_id"`
	Code                string         `json:"code"`
	ProductName         string         `json:"product_name"`
	Brands              string         `json:"brands"`
	ServingSize         string         `json:"serving_size"`
	ServingQuantity     float64        `json:"serving_quantity"`
	ServingQuantityUnit string         `json:"serving_quantity_unit"`
	Nutriments          map[string]any `json:"nutriments"`
}

type offSearchResponse struct {
	Products []offProduct `json:"products"`
}
