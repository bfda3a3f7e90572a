// Package lookup answers food searches and barcode scans from the result
// cache, falling back to external providers on a miss.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saadjs/kcal-core/internal/cache"
	"github.com/saadjs/kcal-core/internal/model"
	"github.com/saadjs/kcal-core/internal/validate"
)

// Provider is an external nutrition database.
type Provider interface {
	Name() string
	SearchFoods(ctx context.Context, query string, limit int) ([]model.FoodSearchResult, error)
	LookupBarcode(ctx context.Context, barcode string) (model.FoodSearchResult, error)
}

var barcodePattern = regexp.MustCompile(`^[0-9]{8,14}$`)

type Options struct {
	Limit   int
	Timeout time.Duration
}

type Service struct {
	cache     *cache.Cache
	providers []Provider
	opts      Options
	log       *zap.Logger
}

func New(c *cache.Cache, providers []Provider, opts Options, log *zap.Logger) *Service {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cache: c, providers: providers, opts: opts, log: log}
}

func (s *Service) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

// Search returns results for query, served from the cache when possible.
// Providers are queried concurrently; their results are merged in provider
// order, de-duplicated, and verified results are listed first.
func (s *Service) Search(ctx context.Context, query string) ([]model.FoodSearchResult, error) {
	norm := cache.NormalizeQuery(query)
	if norm == "" {
		return nil, model.NewValidationError("query", model.RuleRequired, "is required")
	}
	if cached, ok := s.cache.Query(norm); ok {
		s.log.Debug("search cache hit", zap.String("query", norm))
		return cached, nil
	}
	if len(s.providers) == 0 {
		return nil, fmt.Errorf("search %q: no lookup providers configured: %w", norm, model.ErrNetwork)
	}

	perProvider := make([][]model.FoodSearchResult, len(s.providers))
	failures := make([]error, len(s.providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.providers {
		g.Go(func() error {
			callCtx, cancel := s.callCtx(gctx)
			defer cancel()
			items, err := p.SearchFoods(callCtx, norm, s.opts.Limit)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", p.Name(), err)
				return nil
			}
			perProvider[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var all []model.FoodSearchResult
	for _, items := range perProvider {
		all = append(all, items...)
	}
	if len(all) == 0 {
		if err := classify(failures); err != nil {
			return nil, fmt.Errorf("search %q: %w", norm, err)
		}
	}
	for _, err := range failures {
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			s.log.Warn("search provider failed", zap.String("query", norm), zap.Error(err))
		}
	}

	results := rank(all, s.opts.Limit)
	s.cache.PutQuery(norm, results)
	for _, r := range results {
		s.cache.PutSearchResult(r)
	}
	return results, nil
}

// Barcode resolves an 8-14 digit code. Providers are tried in order and the
// first match wins.
func (s *Service) Barcode(ctx context.Context, code string) (model.FoodSearchResult, error) {
	code = cache.NormalizeBarcode(code)
	if !barcodePattern.MatchString(code) {
		return model.FoodSearchResult{}, model.NewValidationError("barcode", model.RuleInvalidFormat, "must be 8 to 14 digits")
	}
	if cached, ok := s.cache.Barcode(code); ok {
		s.log.Debug("barcode cache hit", zap.String("barcode", code))
		return cached, nil
	}

	failures := make([]error, 0, len(s.providers))
	for _, p := range s.providers {
		if err := ctx.Err(); err != nil {
			return model.FoodSearchResult{}, err
		}
		callCtx, cancel := s.callCtx(ctx)
		r, err := p.LookupBarcode(callCtx, code)
		cancel()
		if err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				s.log.Warn("barcode provider failed", zap.String("provider", p.Name()), zap.String("barcode", code), zap.Error(err))
			}
			failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		r = markVerified(r)
		if r.Barcode == "" {
			r.Barcode = code
		}
		s.cache.PutBarcode(code, r)
		s.cache.PutSearchResult(r)
		return r, nil
	}
	if len(failures) == 0 {
		return model.FoodSearchResult{}, fmt.Errorf("barcode %s: no lookup providers configured: %w", code, model.ErrNetwork)
	}
	return model.FoodSearchResult{}, fmt.Errorf("barcode %s: %w", code, classify(failures))
}

// Cached returns a single previously seen result by its provider key.
func (s *Service) Cached(key string) (model.FoodSearchResult, bool) {
	return s.cache.SearchResult(key)
}

// classify reports nil when every provider answered "no match", ErrNotFound
// wrapped for barcode callers to distinguish, and ErrNetwork otherwise.
func classify(failures []error) error {
	var (
		other    []error
		notFound int
	)
	for _, err := range failures {
		switch {
		case err == nil:
		case errors.Is(err, model.ErrNotFound):
			notFound++
		default:
			other = append(other, err)
		}
	}
	if len(other) > 0 {
		return fmt.Errorf("%w: %w", model.ErrNetwork, errors.Join(other...))
	}
	if notFound > 0 {
		return model.ErrNotFound
	}
	return nil
}

func markVerified(r model.FoodSearchResult) model.FoodSearchResult {
	r.Verified = validate.SearchResult(r) == nil
	return r
}

func rank(all []model.FoodSearchResult, limit int) []model.FoodSearchResult {
	seen := make(map[string]bool, len(all))
	out := make([]model.FoodSearchResult, 0, len(all))
	for _, r := range all {
		dedupe := strings.ToLower(strings.TrimSpace(r.Name)) + "|" + strings.ToLower(strings.TrimSpace(r.Brand))
		if seen[r.Key()] || seen[dedupe] {
			continue
		}
		seen[r.Key()], seen[dedupe] = true, true
		out = append(out, markVerified(r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Verified && !out[j].Verified
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
