package service

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// StockMirror is a read-side copy of product stock keyed by product id.
// SetStock ignores writes whose version is not newer than the stored one.
type StockMirror interface {
	GetStock(ctx context.Context, productID int64) (available int, ok bool, err error)
	SetStock(ctx context.Context, productID int64, available int, version int64) (bool, error)
	DeleteStock(ctx context.Context, productID int64) error
}

// Availability is the stock figure shown to shoppers.
type Availability struct {
	ProductID int64  `json:"product_id"`
	Available int    `json:"available"`
	Source    string `json:"source"`
}

// InventoryClient keeps the stock mirror in line with the database and
// serves availability reads from it. Order flows never read the mirror.
type InventoryClient struct {
	store  store.Repository
	mirror StockMirror
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(repo store.Repository, mirror StockMirror) *InventoryClient {
	return &InventoryClient{
		store:  repo,
		mirror: mirror,
		logger: util.GetLogger(),
	}
}

// Available returns the mirrored stock of a product, falling back to the
// database on a miss or a mirror error.
func (ic *InventoryClient) Available(ctx context.Context, productID int64) (*Availability, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.Available")
	defer span.End()

	available, ok, err := ic.mirror.GetStock(ctx, productID)
	if err != nil {
		ic.logger.Warn("Stock mirror read failed, falling back to DB",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
	if err == nil && ok {
		return &Availability{ProductID: productID, Available: available, Source: "cache"}, nil
	}

	product, err := ic.store.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "product", ID: productID}
	}
	if err != nil {
		return nil, errors.Wrap(err, "read product stock")
	}

	ic.mirrorProduct(ctx, product)
	return &Availability{ProductID: productID, Available: product.Stock, Source: "database"}, nil
}

// Refresh copies the current database stock of each product into the mirror.
func (ic *InventoryClient) Refresh(ctx context.Context, productIDs ...int64) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.Refresh")
	defer span.End()

	products, err := ic.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		util.StockCacheRefreshTotal.WithLabelValues("error").Inc()
		return errors.Wrap(err, "load products for refresh")
	}
	for i := range products {
		ic.mirrorProduct(ctx, &products[i])
	}
	return nil
}

// RefreshItems refreshes the mirror for every product named in an order event.
func (ic *InventoryClient) RefreshItems(ctx context.Context, items []models.OrderItemData) error {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ic.Refresh(ctx, ids...)
}

// Forget drops a product from the mirror so availability reads fall through
// to the database.
func (ic *InventoryClient) Forget(ctx context.Context, productID int64) error {
	if err := ic.mirror.DeleteStock(ctx, productID); err != nil {
		return errors.Wrapf(err, "forget product %d", productID)
	}
	return nil
}

// SyncInventoryToRedis synchronizes database inventory to the mirror
func (ic *InventoryClient) SyncInventoryToRedis(ctx context.Context) error {
	ic.logger.Info("Starting inventory sync to Redis")

	products, err := ic.store.GetProducts(ctx)
	if err != nil {
		return errors.Wrap(err, "get products")
	}

	for i := range products {
		ic.mirrorProduct(ctx, &products[i])
	}

	ic.logger.Info("Inventory sync completed", zap.Int("count", len(products)))
	return nil
}

func (ic *InventoryClient) mirrorProduct(ctx context.Context, p *models.Product) {
	written, err := ic.mirror.SetStock(ctx, p.ID, p.Stock, p.Version)
	switch {
	case err != nil:
		util.StockCacheRefreshTotal.WithLabelValues("error").Inc()
		ic.logger.Error("Failed to mirror stock",
			zap.Int64("product_id", p.ID),
			zap.Error(err))
	case written:
		util.StockCacheRefreshTotal.WithLabelValues("written").Inc()
	default:
		util.StockCacheRefreshTotal.WithLabelValues("stale").Inc()
	}
}
