package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product represents a catalog item. Stock is the reservable quantity.
type Product struct {
	ID          int64           `db:"id" json:"id"`
	SellerID    int64           `db:"seller_id" json:"seller_id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Category    string          `db:"category" json:"category"`
	Brand       string          `db:"brand" json:"brand"`
	Stock       int             `db:"stock" json:"stock"`
	Images      pq.StringArray  `db:"images" json:"images"`
	Featured    bool            `db:"featured" json:"featured"`
	Discount    int             `db:"discount" json:"discount"`
	Version     int64           `db:"version" json:"-"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Product categories accepted by the catalog.
var ProductCategories = []string{
	"Phones", "Laptops", "Tablets", "Smartwatches", "Headphones", "Accessories", "Other",
}

// IsValidCategory reports whether c is one of ProductCategories.
func IsValidCategory(c string) bool {
	for _, known := range ProductCategories {
		if c == known {
			return true
		}
	}
	return false
}

// CartItem is one stored cart line.
type CartItem struct {
	UserID    int64     `db:"user_id" json:"-"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartLine is a cart line joined with the live product at read time.
// Product is nil when the referenced product no longer exists.
type CartLine struct {
	ProductID int64    `json:"product_id"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

// CartSnapshot is the state of a user's cart as read inside one scope.
type CartSnapshot struct {
	UserID int64      `json:"user_id"`
	Lines  []CartLine `json:"items"`
}

// IsEmpty reports whether the cart has no lines.
func (c *CartSnapshot) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Order represents a customer order. Items carry prices captured at creation.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status         OrderStatus     `db:"status" json:"status"`
	IdempotencyKey *string         `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	Items          []OrderItem     `db:"-" json:"items"`
}

// OrderItem represents a line in an order.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// Subtotal returns UnitPrice * Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Role of an authenticated caller.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Actor is the authenticated caller, passed explicitly to every operation.
type Actor struct {
	UserID int64
	Role   Role
}

// IsAdmin reports whether the actor has the administrative role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccess reports whether the actor owns ownerID's resources or is an admin.
func (a Actor) CanAccess(ownerID int64) bool {
	return a.IsAdmin() || a.UserID == ownerID
}
