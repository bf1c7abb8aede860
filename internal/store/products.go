package store

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const productColumns = `id, seller_id, name, description, price, category, brand, stock,
	images, featured, discount, version, created_at, updated_at`

// ProductFilter narrows and pages a catalog listing.
type ProductFilter struct {
	Search   string
	Category string
	Brand    string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Featured *bool
	SortBy   string // created_at, price or name
	Desc     bool
	Page     int
	Limit    int
}

var sortColumns = map[string]string{
	"":           "created_at",
	"created_at": "created_at",
	"price":      "price",
	"name":       "name",
}

// GetProductByID retrieves a product by ID
func (s *queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "get product")
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *queries) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := sqlx.SelectContext(ctx, s.q, &products,
		"SELECT "+productColumns+" FROM products ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	return products, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *queries) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, errors.Wrap(err, "build products by ids query")
	}
	query = s.q.Rebind(query)

	var products []models.Product
	if err := sqlx.SelectContext(ctx, s.q, &products, query, args...); err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return products, nil
}

// ListProducts returns one page of products matching f and the total match count.
func (s *queries) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf("(name ILIKE %[1]s OR description ILIKE %[1]s OR brand ILIKE %[1]s)", p))
	}
	if f.Category != "" {
		conds = append(conds, "category = "+arg(f.Category))
	}
	if f.Brand != "" {
		conds = append(conds, "brand = "+arg(f.Brand))
	}
	if f.MinPrice != nil {
		conds = append(conds, "price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		conds = append(conds, "price <= "+arg(*f.MaxPrice))
	}
	if f.Featured != nil {
		conds = append(conds, "featured = "+arg(*f.Featured))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, "SELECT COUNT(*) FROM products"+where, args...); err != nil {
		return nil, 0, errors.Wrap(err, "count products")
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}

	query := "SELECT " + productColumns + " FROM products" + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir) +
		" LIMIT " + arg(f.Limit) + " OFFSET " + arg((f.Page-1)*f.Limit)

	var products []models.Product
	if err := sqlx.SelectContext(ctx, s.q, &products, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "list products")
	}
	return products, total, nil
}

// CreateProduct inserts p and fills its generated fields.
func (s *queries) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.Images == nil {
		p.Images = pq.StringArray{}
	}
	query := `
		INSERT INTO products (seller_id, name, description, price, category, brand, stock, images, featured, discount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, version, created_at, updated_at`

	row := s.q.QueryRowxContext(ctx, query,
		p.SellerID, p.Name, p.Description, p.Price, p.Category, p.Brand,
		p.Stock, p.Images, p.Featured, p.Discount)
	if err := row.Scan(&p.ID, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return errors.Wrap(err, "create product")
	}
	return nil
}

// UpdateProduct writes every mutable field of p, including an administrative
// stock level.
func (s *queries) UpdateProduct(ctx context.Context, p *models.Product) error {
	if p.Images == nil {
		p.Images = pq.StringArray{}
	}
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, category = $4, brand = $5,
		    stock = $6, images = $7, featured = $8, discount = $9,
		    version = version + 1, updated_at = NOW()
		WHERE id = $10
		RETURNING version, updated_at`

	row := s.q.QueryRowxContext(ctx, query,
		p.Name, p.Description, p.Price, p.Category, p.Brand,
		p.Stock, p.Images, p.Featured, p.Discount, p.ID)
	if err := row.Scan(&p.Version, &p.UpdatedAt); err != nil {
		return notFound(err, "update product")
	}
	return nil
}

// DeleteProduct removes a product. Carts still referencing it become stale.
func (s *queries) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "delete product")
	}
	return requireRow(res)
}
