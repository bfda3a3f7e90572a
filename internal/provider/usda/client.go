package usda

import (
	"bytes"
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
	Name           = "usda"
	defaultBaseURL = "https://api.nal.usda.gov"
)

type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) Name() string { return Name }

type searchRequest struct {
	Query    string   `json:"query"`
	DataType []string `json:"dataType,omitempty"`
	PageSize int      `json:"pageSize"`
}

func (c *Client) search(ctx context.Context, req searchRequest) ([]usdaFood, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("missing USDA API key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal USDA search payload: %w", err)
	}
	u := fmt.Sprintf("%s/fdc/v1/foods/search?api_key=%s", baseURL, url.QueryEscape(c.APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create USDA request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute USDA request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read USDA response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("USDA request failed with status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode USDA response: %w", err)
	}
	return parsed.Foods, nil
}

// LookupBarcode searches branded foods and prefers an exact GTIN/UPC match.
func (c *Client) LookupBarcode(ctx context.Context, barcode string) (model.FoodSearchResult, error) {
	foods, err := c.search(ctx, searchRequest{Query: barcode, DataType: []string{"Branded"}, PageSize: 20})
	if err != nil {
		return model.FoodSearchResult{}, err
	}
	food, ok := selectBarcodeMatch(foods, barcode)
	if !ok {
		return model.FoodSearchResult{}, fmt.Errorf("USDA branded food for barcode %q: %w", barcode, model.ErrNotFound)
	}
	r := toResult(food)
	r.Barcode = barcode
	return r, nil
}

func (c *Client) SearchFoods(ctx context.Context, query string, limit int) ([]model.FoodSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	foods, err := c.search(ctx, searchRequest{Query: strings.TrimSpace(query), PageSize: limit})
	if err != nil {
		return nil, err
	}
	out := make([]model.FoodSearchResult, 0, len(foods))
	for _, f := range foods {
		if strings.TrimSpace(f.Description) == "" {
			continue
		}
		out = append(out, toResult(f))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("USDA foods for query %q: %w", query, model.ErrNotFound)
	}
	return out, nil
}

func toResult(food usdaFood) model.FoodSearchResult {
	out := model.FoodSearchResult{
		Name:        strings.TrimSpace(food.Description),
		Brand:       strings.TrimSpace(food.BrandOwner),
		ServingSize: food.ServingSize,
		ServingUnit: strings.ToLower(strings.TrimSpace(food.ServingSizeUnit)),
		Source:      Name,
		SourceRef:   strconv.FormatInt(food.FDCID, 10),
		Barcode:     strings.TrimSpace(food.GTINUPC),
	}
	if out.ServingSize <= 0 {
		out.ServingSize, out.ServingUnit = 100, "g"
	}
	for _, n := range food.FoodNutrients {
		switch strings.ToLower(strings.TrimSpace(n.NutrientName)) {
		case "energy":
			if u := strings.ToLower(n.UnitName); u == "" || u == "kcal" {
				out.Calories = n.Value
			}
		case "protein":
			out.ProteinG = n.Value
		case "carbohydrate, by difference":
			out.CarbsG = n.Value
		case "total lipid (fat)":
			out.FatG = n.Value
		}
	}
	return out
}

func selectBarcodeMatch(foods []usdaFood, barcode string) (usdaFood, bool) {
	for _, f := range foods {
		if strings.TrimSpace(f.GTINUPC) == barcode {
			return f, true
		}
	}
	if len(foods) > 0 {
		return foods[0], true
	}
	return usdaFood{}, false
}

type searchResponse struct {
	Foods []usdaFood `json:"foods"`
}

type usdaFood struct {
	FDCID           int64          `json:"fdcId"`
	Description     string         `json:"description"`
	BrandOwner      string         `json:"brandOwner"`
	GTINUPC         string         `json:"gtinUpc"`
	ServingSize     float64        `json:"servingSize"`
	ServingSizeUnit string         `json:"servingSizeUnit"`
	FoodNutrients   []usdaNutrient `json:"foodNutrients"`
}

type usdaNutrient struct {
	NutrientName string  `json:"nutrientName"`
	UnitName     string  `json:"unitName"`
	Value        float64 `json:"value"`
}
