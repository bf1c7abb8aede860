package api

import (
	"net/http"
	"strconv"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" binding:"required"`
	Brand       string          `json:"brand"`
	Stock       int             `json:"stock"`
	Images      []string        `json:"images"`
	Featured    bool            `json:"featured"`
	Discount    int             `json:"discount"`
}

func (r productRequest) toModel() *models.Product {
	return &models.Product{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Category:    r.Category,
		Brand:       r.Brand,
		Stock:       r.Stock,
		Images:      r.Images,
		Featured:    r.Featured,
		Discount:    r.Discount,
	}
}

// listProducts reads page, limit, search, category, brand, minPrice,
// maxPrice, featured, sort and order from the query string.
func (h *Handler) listProducts(c *gin.Context) {
	f := store.ProductFilter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Brand:    c.Query("brand"),
		SortBy:   c.Query("sort"),
		Desc:     c.Query("order") == "desc",
	}

	var err error
	if f.Page, err = queryInt(c, "page"); err != nil {
		badRequest(c, "Invalid page", err)
		return
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		badRequest(c, "Invalid limit", err)
		return
	}
	if f.MinPrice, err = queryDecimal(c, "minPrice"); err != nil {
		badRequest(c, "Invalid minPrice", err)
		return
	}
	if f.MaxPrice, err = queryDecimal(c, "maxPrice"); err != nil {
		badRequest(c, "Invalid maxPrice", err)
		return
	}
	if raw, ok := c.GetQuery("featured"); ok {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "Invalid featured", err)
			return
		}
		f.Featured = &featured
	}

	page, err := h.catalog.ListProducts(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func queryDecimal(c *gin.Context, key string) (*decimal.Decimal, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) productAvailability(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	availability, err := h.catalog.Availability(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, availability)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), actorFrom(c), req.toModel())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), actorFrom(c), id, req.toModel())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), actorFrom(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product removed"})
}
