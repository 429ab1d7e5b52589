package api

import (
	"errors"
	"net/http"

	"happytoes/internal/payment"
	"happytoes/internal/service"
	"happytoes/internal/util"

	"github.com/gin-gonic/gin"
)

// beginCheckout runs the full server-side checkout: cart snapshot, pending
// order, hosted session. The caller redirects the browser to the returned URL.
func (h *Handler) beginCheckout(c *gin.Context) {
	resp, err := h.checkout.Checkout(c.Request.Context(), identityFrom(c), c.GetHeader("Idempotency-Key"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotSignedIn):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrEmptyCart):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrCheckoutInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrCheckoutCancelled):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrStripeNotConfigured):
			c.JSON(http.StatusInternalServerError, gin.H{"error": service.ErrStripeNotConfigured.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start checkout"})
		}
		return
	}
	c.JSON(http.StatusOK, resp)
}

// createCheckoutSession reshapes a line-item payload into a hosted session.
// Response bodies follow the documented contract exactly.
func (h *Handler) createCheckoutSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	session, err := h.checkout.CreateSession(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStripeNotConfigured):
			c.JSON(http.StatusInternalServerError, gin.H{"error": service.ErrStripeNotConfigured.Error()})
		case errors.Is(err, service.ErrNoItems):
			c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrNoItems.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session."})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": session.ID, "url": session.URL})
}

// paymentWebhook receives provider notifications. The signature is verified
// before anything is trusted; payment outcomes flow through the event stream.
func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read webhook body"})
		return
	}

	event, err := payment.ParseWebhook(body, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			util.WebhooksRejectedTotal.WithLabelValues("bad_signature").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
			return
		}
		util.WebhooksRejectedTotal.WithLabelValues("bad_payload").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	if err := h.checkout.HandleProviderEvent(c.Request.Context(), event); err != nil {
		// Non-2xx makes the provider redeliver; dedupe makes that safe
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
