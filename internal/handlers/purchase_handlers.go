package handlers

import (
	"net/http"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/services"
	"repair_shop_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// PurchaseHandler serves supplier purchase orders.
type PurchaseHandler struct {
	purchaseService services.PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(ps services.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchaseService: ps}
}

func (h *PurchaseHandler) CreatePurchase(c *gin.Context) {
	var req services.CreatePurchaseRequest
	if !bindJSON(c, &req, "CreatePurchase") {
		return
	}
	purchase, err := h.purchaseService.CreatePurchase(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err, "create purchase")
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

func (h *PurchaseHandler) ListPurchases(c *gin.Context) {
	var filters models.PurchaseFilters
	if !bindQuery(c, &filters, "ListPurchases") {
		return
	}
	filters.Page, filters.PageSize = utils.PageParams(c.Query("page"), c.Query("page_size"))

	purchases, total, err := h.purchaseService.ListPurchases(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, err, "fetch purchases")
		return
	}
	paginated(c, purchases, total, filters.Page, filters.PageSize)
}

func (h *PurchaseHandler) GetPurchase(c *gin.Context) {
	id, ok := pathID(c, "id", "purchase")
	if !ok {
		return
	}
	purchase, err := h.purchaseService.GetPurchase(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "fetch purchase")
		return
	}
	c.JSON(http.StatusOK, purchase)
}

// ReceivePurchase adds every line to stock and marks the purchase RECEIVED.
func (h *PurchaseHandler) ReceivePurchase(c *gin.Context) {
	id, ok := pathID(c, "id", "purchase")
	if !ok {
		return
	}
	purchase, err := h.purchaseService.Receive(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "receive purchase")
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func (h *PurchaseHandler) CancelPurchase(c *gin.Context) {
	id, ok := pathID(c, "id", "purchase")
	if !ok {
		return
	}
	var req services.ReasonRequest
	if !bindJSON(c, &req, "CancelPurchase") {
		return
	}
	purchase, err := h.purchaseService.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondServiceError(c, err, "cancel purchase")
		return
	}
	c.JSON(http.StatusOK, purchase)
}
