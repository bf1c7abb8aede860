package service

import (
	"context"
	"strings"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// ProductPage is one page of a catalog listing.
type ProductPage struct {
	Products []models.Product `json:"products"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	Pages    int              `json:"pages"`
}

// CatalogService serves product reads to everyone and product writes to admins.
type CatalogService struct {
	store     store.Repository
	inventory *InventoryClient
	logger    *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo store.Repository, inventory *InventoryClient) *CatalogService {
	return &CatalogService{
		store:     repo,
		inventory: inventory,
		logger:    util.GetLogger(),
	}
}

// ListProducts returns the page of products matching f.
func (s *CatalogService) ListProducts(ctx context.Context, f store.ProductFilter) (*ProductPage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	if _, ok := sortableFields[f.SortBy]; !ok {
		return nil, &ValidationError{Field: "sort", Message: "must be one of created_at, price, name"}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, &ValidationError{Field: "price", Message: "min price exceeds max price"}
	}
	f.Search = strings.TrimSpace(f.Search)

	products, total, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return nil, classify("list products", err)
	}
	return &ProductPage{
		Products: products,
		Total:    total,
		Page:     f.Page,
		Limit:    f.Limit,
		Pages:    (total + f.Limit - 1) / f.Limit,
	}, nil
}

var sortableFields = map[string]struct{}{"": {}, "created_at": {}, "price": {}, "name": {}}

// GetProduct returns a single product.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	product, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "product", ID: id}
	}
	if err != nil {
		return nil, classify("get product", err)
	}
	return product, nil
}

// Availability returns the shopper-facing stock figure of a product.
func (s *CatalogService) Availability(ctx context.Context, id int64) (*Availability, error) {
	a, err := s.inventory.Available(ctx, id)
	if err != nil {
		return nil, classify("product availability", err)
	}
	return a, nil
}

// CreateProduct adds a product to the catalog. Admin only.
func (s *CatalogService) CreateProduct(ctx context.Context, actor models.Actor, p *models.Product) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, &AuthorizationError{Action: "create products"}
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	p.SellerID = actor.UserID
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, classify("create product", err)
	}

	s.refreshMirror(ctx, p.ID)
	s.logger.Info("Product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// UpdateProduct replaces the mutable fields of a product, stock included.
// Setting stock here is an administrative restock, not an order flow.
func (s *CatalogService) UpdateProduct(ctx context.Context, actor models.Actor, id int64, p *models.Product) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, &AuthorizationError{Action: "update products"}
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	p.ID = id
	err := s.store.UpdateProduct(ctx, p)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "product", ID: id}
	}
	if err != nil {
		return nil, classify("update product", err)
	}

	s.refreshMirror(ctx, id)
	s.logger.Info("Product updated", zap.Int64("product_id", id), zap.Int("stock", p.Stock))
	return s.GetProduct(ctx, id)
}

// DeleteProduct removes a product. Admin only.
func (s *CatalogService) DeleteProduct(ctx context.Context, actor models.Actor, id int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct")
	defer span.End()

	if !actor.IsAdmin() {
		return &AuthorizationError{Action: "delete products"}
	}
	err := s.store.DeleteProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Resource: "product", ID: id}
	}
	if err != nil {
		return classify("delete product", err)
	}
	if err := s.inventory.Forget(ctx, id); err != nil {
		s.logger.Warn("Failed to drop product from stock mirror", zap.Int64("product_id", id), zap.Error(err))
	}
	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	return nil
}

func (s *CatalogService) refreshMirror(ctx context.Context, id int64) {
	if err := s.inventory.Refresh(ctx, id); err != nil {
		s.logger.Warn("Failed to refresh stock mirror", zap.Int64("product_id", id), zap.Error(err))
	}
}

func validateProduct(p *models.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Name == "":
		return &ValidationError{Field: "name", Message: "is required"}
	case p.Price.IsNegative():
		return &ValidationError{Field: "price", Message: "must not be negative"}
	case p.Stock < 0:
		return &ValidationError{Field: "stock", Message: "must not be negative"}
	case p.Discount < 0 || p.Discount > 100:
		return &ValidationError{Field: "discount", Message: "must be between 0 and 100"}
	case !models.IsValidCategory(p.Category):
		return &ValidationError{Field: "category", Message: "must be one of " + strings.Join(models.ProductCategories, ", ")}
	}
	return nil
}
