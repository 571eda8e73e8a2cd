package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/services"
	"repair_shop_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PartHandler serves the parts catalog and the stock movement log.
type PartHandler struct {
	partService services.PartService
}

// NewPartHandler creates a new PartHandler.
func NewPartHandler(ps services.PartService) *PartHandler {
	return &PartHandler{partService: ps}
}

// CreatePart handles the creation of a new catalog part.
func (h *PartHandler) CreatePart(c *gin.Context) {
	var req services.CreatePartRequest
	if !bindJSON(c, &req, "CreatePart") {
		return
	}
	part, err := h.partService.CreatePart(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err, "create part")
		return
	}
	c.JSON(http.StatusCreated, part)
}

// ListParts handles fetching parts with pagination and search.
func (h *PartHandler) ListParts(c *gin.Context) {
	var filters models.PartFilters
	if !bindQuery(c, &filters, "ListParts") {
		return
	}
	filters.Page, filters.PageSize = utils.PageParams(c.Query("page"), c.Query("page_size"))

	parts, total, err := h.partService.ListParts(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, err, "fetch parts")
		return
	}
	paginated(c, parts, total, filters.Page, filters.PageSize)
}

func (h *PartHandler) GetPart(c *gin.Context) {
	id, ok := pathID(c, "id", "part")
	if !ok {
		return
	}
	part, err := h.partService.GetPart(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "fetch part")
		return
	}
	c.JSON(http.StatusOK, part)
}

func (h *PartHandler) UpdatePart(c *gin.Context) {
	id, ok := pathID(c, "id", "part")
	if !ok {
		return
	}
	var req services.UpdatePartRequest
	if !bindJSON(c, &req, "UpdatePart") {
		return
	}
	part, err := h.partService.UpdatePart(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, err, "update part")
		return
	}
	c.JSON(http.StatusOK, part)
}

// LowStock lists active parts at or below their minimum quantity.
func (h *PartHandler) LowStock(c *gin.Context) {
	parts, err := h.partService.LowStock(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "fetch low stock parts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": parts})
}

func (h *PartHandler) OutOfStock(c *gin.Context) {
	parts, err := h.partService.OutOfStock(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "fetch out of stock parts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": parts})
}

// AdjustStock records a manual IN or OUT movement for a part.
func (h *PartHandler) AdjustStock(c *gin.Context) {
	id, ok := pathID(c, "id", "part")
	if !ok {
		return
	}
	var req services.AdjustStockRequest
	if !bindJSON(c, &req, "AdjustStock") {
		return
	}
	movement, err := h.partService.AdjustStock(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, err, "adjust stock")
		return
	}
	c.JSON(http.StatusCreated, movement)
}

// ListMovements returns the stock audit trail.
func (h *PartHandler) ListMovements(c *gin.Context) {
	filters, ok := h.movementFilters(c)
	if !ok {
		return
	}
	filters.Page, filters.PageSize = utils.PageParams(c.Query("page"), c.Query("page_size"))

	movements, total, err := h.partService.ListMovements(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, err, "fetch stock movements")
		return
	}
	paginated(c, movements, total, filters.Page, filters.PageSize)
}

// PartMovements is ListMovements scoped to the part in the path.
func (h *PartHandler) PartMovements(c *gin.Context) {
	id, ok := pathID(c, "id", "part")
	if !ok {
		return
	}
	filters, ok := h.movementFilters(c)
	if !ok {
		return
	}
	filters.PartID = &id
	filters.Page, filters.PageSize = utils.PageParams(c.Query("page"), c.Query("page_size"))

	movements, total, err := h.partService.ListMovements(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, err, "fetch stock movements")
		return
	}
	paginated(c, movements, total, filters.Page, filters.PageSize)
}

// ExportMovements downloads the filtered movement log as an xlsx workbook.
func (h *PartHandler) ExportMovements(c *gin.Context) {
	filters, ok := h.movementFilters(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.partService.ExportMovements(c.Request.Context(), filters, &buf); err != nil {
		respondServiceError(c, err, "export stock movements")
		return
	}
	filename := fmt.Sprintf("stock-movements-%s.xlsx", time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *PartHandler) movementFilters(c *gin.Context) (models.MovementFilters, bool) {
	var filters models.MovementFilters
	if !bindQuery(c, &filters, "MovementFilters") {
		return filters, false
	}
	if filters.Kind != nil && !filters.Kind.Valid() {
		utils.RespondValidationFailed(c, "unknown movement kind: "+string(*filters.Kind))
		return filters, false
	}
	return filters, true
}
