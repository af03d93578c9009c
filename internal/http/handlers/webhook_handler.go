// Order fulfillment HTTP handlers.
//
// This file exposes the order-paid webhook:
//   - POST /webhooks/orders/paid   (and the legacy POST /webhook/order-paid)
//
// Handlers are transport-thin: they decode the commerce platform's payload
// into a services.OrderPaidEvent, run the pipeline and translate the outcome.
// Every processed delivery, including duplicates and failed generations, is
// acknowledged with 200 so the platform does not redeliver it; only store
// errors answer 500.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-fulfillment-backend/internal/services"
	"github.com/tbourn/go-fulfillment-backend/internal/sysutil"
)

//
// Service contracts (context-aware)
//

// OrderPaidProcessor runs the fulfillment pipeline for one event.
type OrderPaidProcessor interface {
	HandleOrderPaid(ctx context.Context, ev services.OrderPaidEvent) (services.Outcome, error)
}

// DownloadAuthorizer answers download and polling requests.
type DownloadAuthorizer interface {
	Authorize(ctx context.Context, orderID, claimedEmail string) (services.Grant, error)
	StatusOf(ctx context.Context, orderID string) (services.Status, error)
}

// ArtifactLocator resolves an artifact reference into a fetchable URL.
type ArtifactLocator interface {
	URL(ctx context.Context, ref string) (string, error)
}

//
// Handler wiring
//

// Handlers groups the fulfillment endpoints.
type Handlers struct {
	fulfill   OrderPaidProcessor
	gate      DownloadAuthorizer
	artifacts ArtifactLocator
}

// New constructs Handlers bound to the given services.
func New(fulfill OrderPaidProcessor, gate DownloadAuthorizer, artifacts ArtifactLocator) *Handlers {
	return &Handlers{fulfill: fulfill, gate: gate, artifacts: artifacts}
}

//
// DTOs
//

// OrderID accepts the order id as a JSON number or a JSON string. Numbers
// keep their literal text, so large ids survive without float rounding.
type OrderID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *OrderID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = OrderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = OrderID(n.String())
	return nil
}

// OrderCustomer is the customer block of an order-paid payload.
type OrderCustomer struct {
	Email     string `json:"email" example:"ana@example.com"`
	FirstName string `json:"first_name" example:"Ana"`
	LastName  string `json:"last_name" example:"Silva"`
}

// OrderPaidPayload is the subset of the commerce platform's order object the
// pipeline reads. Unknown fields are ignored.
type OrderPaidPayload struct {
	ID OrderID `json:"id" swaggertype:"string" example:"820982911946154508"`
	// Email is the order's contact email; customer.email is the fallback.
	Email    string         `json:"email" example:"ana@example.com"`
	Customer *OrderCustomer `json:"customer,omitempty"`
}

// Event maps the payload onto the pipeline input. Whitespace and defaults
// are handled by the service.
func (p OrderPaidPayload) Event() services.OrderPaidEvent {
	ev := services.OrderPaidEvent{OrderID: string(p.ID), CustomerEmail: p.Email}
	if p.Customer != nil {
		ev.CustomerEmail = sysutil.FirstNonEmpty(p.Email, p.Customer.Email)
		ev.CustomerName = p.Customer.FirstName + " " + p.Customer.LastName
	}
	return ev
}

// OrderPaidResponse acknowledges a processed delivery.
type OrderPaidResponse struct {
	OrderID string           `json:"order_id" example:"820982911946154508"`
	Outcome services.Outcome `json:"outcome" example:"ready" enums:"ready,failed,duplicate,in_flight"`
}

//
// Handlers
//

// OrderPaid godoc
// @ID          orderPaid
// @Summary     Order-paid webhook
// @Description Creates the order record, generates the personalized artifact and emails the download link. Redeliveries of the same order id are acknowledged without generating again.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.OrderPaidPayload  true  "Order object as sent by the commerce platform"
//
// @Success     200  {object}  handlers.OrderPaidResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed payload or invalid event"
// @Failure     500  {object}  handlers.ErrorResponse  "Event not processed; redeliver"
// @Router      /webhooks/orders/paid [post]
func (h *Handlers) OrderPaid(c *gin.Context) {
	var req OrderPaidPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	ev := req.Event()
	outcome, err := h.fulfill.HandleOrderPaid(c.Request.Context(), ev)
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidEvent, ve.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeFulfillmentFailed, "order could not be processed")
		return
	}

	ok(c, http.StatusOK, OrderPaidResponse{OrderID: strings.TrimSpace(ev.OrderID), Outcome: outcome})
}
