package upcitemdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadjs/kcal-core/internal/model"
)

func TestLookupBarcodeParsesUPCItemDBResponse(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prod/trial/lookup", r.URL.Path)
		assert.Equal(t, "123456789012", r.URL.Query().Get("upc"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "code": "OK",
  "items": [
    {
      "title": "Test Cereal",
      "brand": "Test Brand",
      "size": "40 g",
      "nutrition_facts": {
        "Calories": "150",
        "Protein": "3g",
        "Total Carbohydrate": "30g",
        "Saturated Fat": "0.5g",
        "Total Fat": "2g",
        "Sodium": "120mg"
      }
    }
  ]
}`))
	}))
	defer ts.Close()

	c := &Client{BaseURL: ts.URL, HTTPClient: ts.Client()}
	item, err := c.LookupBarcode(context.Background(), "123456789012")
	require.NoError(t, err)
	assert.Equal(t, "Test Cereal", item.Name)
	assert.Equal(t, 150.0, item.Calories)
	assert.Equal(t, 3.0, item.ProteinG)
	assert.Equal(t, 30.0, item.CarbsG)
	assert.Equal(t, 2.0, item.FatG)
	assert.Equal(t, 40.0, item.ServingSize)
	assert.Equal(t, "upcitemdb:123456789012", item.Key())
}

func TestLookupBarcodeUsesKeyedEndpoint(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prod/v1/lookup", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("user_key"))
		assert.Equal(t, "3scale", r.Header.Get("key_type"))
		_, _ = w.Write([]byte(`{"code": "OK", "items": []}`))
	}))
	defer ts.Close()

	c := &Client{BaseURL: ts.URL, APIKey: "secret", HTTPClient: ts.Client()}
	_, err := c.LookupBarcode(context.Background(), "12345678")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestSearchFoodsParsesUPCItemDBResponse(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prod/trial/search", r.URL.Path)
		assert.Equal(t, "yogurt", r.URL.Query().Get("s"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "code": "OK",
  "items": [
    {
      "title": "Greek Yogurt Strawberry",
      "brand": "Test Brand",
      "upc": "123456789012",
      "size": "150 g",
      "nutrition_facts": {
        "Calories": "140",
        "Protein": "12g",
        "Total Carbohydrate": "15g",
        "Total Fat": "3g"
      }
    },
    {"title": "Second", "upc": "999"}
  ]
}`))
	}))
	defer ts.Close()

	c := &Client{BaseURL: ts.URL, HTTPClient: ts.Client()}
	items, err := c.SearchFoods(context.Background(), "yogurt", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Greek Yogurt Strawberry", items[0].Name)
	assert.Equal(t, "123456789012", items[0].SourceRef)
	assert.Equal(t, 12.0, items[0].ProteinG)
}
