package service

import (
	"context"
	"sort"
	"strings"

	"happytoes/internal/models"
	"happytoes/internal/store"
	"happytoes/internal/util"

	"go.uber.org/zap"
)

// CatalogService serves the customer-facing product listing.
type CatalogService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store *store.Store) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// ListProducts returns the catalog newest-first, filtered by an optional
// case-insensitive text query (name or description) and category. The filter
// is applied in memory over the full list, matching the browsing view.
func (cs *CatalogService) ListProducts(ctx context.Context, query, category string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	products, err := cs.store.GetProducts(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	filtered := make([]models.Product, 0, len(products))
	for _, p := range products {
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		if category != "" && category != "All" && p.Category != category {
			continue
		}
		filtered = append(filtered, p)
	}

	return filtered, nil
}

// Categories returns the distinct non-empty product categories, sorted.
func (cs *CatalogService) Categories(ctx context.Context) ([]string, error) {
	products, err := cs.store.GetProducts(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var categories []string
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)

	return categories, nil
}
