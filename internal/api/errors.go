package api

import (
	"errors"
	"net/http"

	"tour-payments/internal/gateway"
	"tour-payments/internal/service"
	"tour-payments/internal/store"
	"tour-payments/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Storefront-facing messages, kept as the storefront already displays them
const (
	msgMissingFields   = "Faltan datos requeridos"
	msgInvalidOrder    = "Datos del pedido inválidos"
	msgCreateFailed    = "Error al crear la preferencia de pago"
	msgInvalidBody     = "Cuerpo de la solicitud inválido"
	msgOrderNotFound   = "Pedido no encontrado"
	msgInternalFailure = "Error interno del servidor"
)

// checkoutFailure is the body and status answered for a failed checkout
type checkoutFailure struct {
	status  int
	message string
	details string
}

// classifyCheckoutError maps a non-validation checkout error to the response
// the storefront sees. Gateway credential and request problems are operator
// issues and are never echoed verbatim.
func classifyCheckoutError(err error) checkoutFailure {
	var gwErr *gateway.Error
	var buildErr *service.BuildError

	switch {
	case errors.As(err, &buildErr):
		return checkoutFailure{http.StatusInternalServerError, "order could not be turned into a payment", buildErr.Kind}
	case errors.Is(err, store.ErrConcurrencyConflict):
		return checkoutFailure{http.StatusInternalServerError, "order is being processed, retry shortly", "concurrencyConflict"}
	case errors.As(err, &gwErr):
		switch gwErr.Kind {
		case gateway.KindAuthenticationFailed, gateway.KindInvalidRequest:
			return checkoutFailure{http.StatusInternalServerError, "payment provider rejected the request", string(gwErr.Kind)}
		default:
			return checkoutFailure{http.StatusInternalServerError, "payment provider unavailable, retry shortly", string(gateway.KindTransientFailure)}
		}
	default:
		return checkoutFailure{http.StatusInternalServerError, "unexpected error", "internal"}
	}
}

// respondValidation answers a 400 for a rejected order submission
func respondValidation(c *gin.Context, verr *service.ValidationError, raw service.RawOrder) {
	body := gin.H{
		"error":    msgInvalidOrder,
		"kind":     verr.Kind,
		"received": receivedFields(raw),
	}
	if verr.Kind == service.KindMissingFields {
		body["error"] = msgMissingFields
		body["missingFields"] = verr.Fields
	} else if len(verr.Fields) > 0 {
		body["fields"] = verr.Fields
	}
	c.JSON(http.StatusBadRequest, body)
}

func respondCheckoutError(c *gin.Context, err error) {
	failure := classifyCheckoutError(err)
	util.GetLogger().Error("Checkout failed",
		zap.String("details", failure.details),
		zap.Error(err))
	c.JSON(failure.status, gin.H{
		"error":   msgCreateFailed,
		"message": failure.message,
		"details": failure.details,
	})
}

// respondError answers read endpoints
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msgOrderNotFound})
	default:
		util.GetLogger().Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternalFailure})
	}
}

func receivedFields(raw service.RawOrder) gin.H {
	return gin.H{
		"packageName":   raw.Package,
		"customerEmail": raw.CustomerEmail,
		"totalAmount":   raw.TotalAmount,
	}
}
