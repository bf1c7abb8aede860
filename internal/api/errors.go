package api

import (
	"net/http"

	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

func abortJSON(c *gin.Context, status int, message string, details gin.H) {
	body := gin.H{"error": message}
	if details != nil {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, body)
}

// writeError maps a service error to its HTTP status and body.
func writeError(c *gin.Context, err error) {
	var (
		stock      *service.InsufficientStockError
		validation *service.ValidationError
		transition *service.InvalidTransitionError
		authz      *service.AuthorizationError
		notFound   *service.NotFoundError
	)

	switch {
	case errors.As(err, &stock):
		abortJSON(c, http.StatusBadRequest, err.Error(), gin.H{
			"product_id": stock.ProductID,
			"product":    stock.ProductName,
			"requested":  stock.Requested,
			"available":  stock.Available,
		})
	case errors.As(err, &validation):
		abortJSON(c, http.StatusBadRequest, err.Error(), gin.H{"field": validation.Field})
	case errors.As(err, &transition):
		abortJSON(c, http.StatusConflict, err.Error(), gin.H{
			"current_status":   transition.From,
			"requested_status": transition.To,
		})
	case errors.As(err, &authz):
		abortJSON(c, http.StatusForbidden, err.Error(), nil)
	case errors.As(err, &notFound):
		abortJSON(c, http.StatusNotFound, err.Error(), gin.H{"resource": notFound.Resource, "id": notFound.ID})
	default:
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		abortJSON(c, http.StatusInternalServerError, "Internal server error, nothing was saved", gin.H{"retryable": true})
	}
}

func badRequest(c *gin.Context, message string, err error) {
	var details gin.H
	if err != nil {
		details = gin.H{"reason": err.Error()}
	}
	abortJSON(c, http.StatusBadRequest, message, details)
}
