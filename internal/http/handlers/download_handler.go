// Download and status HTTP handlers.
//
//   - GET /download?order_id=&email=   (redirect to the artifact)
//   - GET /orders/{id}/status          (readiness polling)
//
// Every refusal of a download answers the same 404 body, whatever the reason,
// so the response cannot be used to probe which orders exist or which email
// belongs to them. The reason is only logged.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-fulfillment-backend/internal/http/middleware"
	"github.com/tbourn/go-fulfillment-backend/internal/services"
)

const downloadUnavailable = "download not available"

// DownloadResponse is returned instead of a redirect to JSON clients.
type DownloadResponse struct {
	DownloadURL string `json:"download_url" example:"https://shop.example/digital-products/1001-4f1c.pdf"`
}

// OrderStatusResponse reports whether an order's artifact can be downloaded.
type OrderStatusResponse struct {
	Ready     bool   `json:"ready" example:"true"`
	Reference string `json:"reference,omitempty" example:"1001-4f1c.pdf"`
}

// Download godoc
// @ID          download
// @Summary     Download a fulfilled order's artifact
// @Description Redirects to the artifact when the order is ready and the email matches the order. Clients sending Accept: application/json get the URL in the body instead.
// @Tags        Downloads
// @Produce     json
//
// @Param       order_id  query  string  true  "Order ID"        example(1001)
// @Param       email     query  string  true  "Customer email"  example(ana@example.com)
//
// @Success     200  {object}  handlers.DownloadResponse
// @Success     302  {string}  string  "Redirect to the artifact"
// @Failure     404  {object}  handlers.ErrorResponse  "Not available"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /download [get]
func (h *Handlers) Download(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := strings.TrimSpace(c.Query("order_id"))

	grant, err := h.gate.Authorize(ctx, orderID, c.Query("email"))
	if err != nil {
		var denied *services.DeniedError
		if errors.As(err, &denied) {
			middleware.LoggerFrom(c).Info().
				Str("order_id", orderID).
				Str("reason", string(denied.Reason)).
				Msg("download denied")
			fail(c, http.StatusNotFound, ErrCodeNotFound, downloadUnavailable)
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not check order")
		return
	}

	target, err := h.artifacts.URL(ctx, grant.ArtifactRef)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).
			Str("order_id", grant.OrderID).
			Msg("artifact unresolvable for ready order")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "artifact unavailable")
		return
	}

	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		ok(c, http.StatusOK, DownloadResponse{DownloadURL: target})
		return
	}
	c.Redirect(http.StatusFound, target)
}

// OrderStatus godoc
// @ID          orderStatus
// @Summary     Poll order readiness
// @Description Reports whether the order's artifact is ready. Unknown orders are reported as not ready.
// @Tags        Downloads
// @Produce     json
//
// @Param       id  path  string  true  "Order ID"  example(1001)
//
// @Success     200  {object}  handlers.OrderStatusResponse
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /orders/{id}/status [get]
func (h *Handlers) OrderStatus(c *gin.Context) {
	st, err := h.gate.StatusOf(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not check order")
		return
	}
	ok(c, http.StatusOK, OrderStatusResponse{Ready: st.Ready, Reference: st.Reference})
}
