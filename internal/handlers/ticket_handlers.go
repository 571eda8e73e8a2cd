package handlers

import (
	"context"
	"net/http"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/services"
	"repair_shop_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// TicketHandler serves the repair ticket workflow and the parts assigned to tickets.
type TicketHandler struct {
	ticketService    services.TicketService
	partUsageService services.PartUsageService
}

// NewTicketHandler creates a new TicketHandler.
func NewTicketHandler(ts services.TicketService, pus services.PartUsageService) *TicketHandler {
	return &TicketHandler{ticketService: ts, partUsageService: pus}
}

type canTransitionQuery struct {
	To string `form:"to" binding:"required,ticketstate"`
}

// CreateTicket opens a ticket in INTAKE for an existing client.
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	var req services.CreateTicketRequest
	if !bindJSON(c, &req, "CreateTicket") {
		return
	}
	ticket, err := h.ticketService.CreateTicket(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err, "create ticket")
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

// ListTickets lists tickets, newest first.
func (h *TicketHandler) ListTickets(c *gin.Context) {
	h.listTickets(c, false)
}

// ActiveTickets lists tickets that are still being worked on.
func (h *TicketHandler) ActiveTickets(c *gin.Context) {
	h.listTickets(c, true)
}

func (h *TicketHandler) listTickets(c *gin.Context, activeOnly bool) {
	var filters models.TicketFilters
	if !bindQuery(c, &filters, "ListTickets") {
		return
	}
	if activeOnly {
		filters.Active = true
	}
	if filters.State != nil {
		state, err := models.ParseTicketState(string(*filters.State))
		if err != nil {
			utils.RespondValidationFailed(c, err.Error())
			return
		}
		filters.State = &state
	}
	filters.Page, filters.PageSize = utils.PageParams(c.Query("page"), c.Query("page_size"))

	tickets, total, err := h.ticketService.ListTickets(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, err, "list tickets")
		return
	}
	paginated(c, tickets, total, filters.Page, filters.PageSize)
}

// GetTicket returns a ticket with its equipment and parts.
func (h *TicketHandler) GetTicket(c *gin.Context) {
	id, ok := pathID(c, "id", "ticket")
	if !ok {
		return
	}
	ticket, err := h.ticketService.GetTicket(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "fetch ticket")
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// LookupTicket is the unauthenticated status lookup by ticket code.
func (h *TicketHandler) LookupTicket(c *gin.Context) {
	view, err := h.ticketService.LookupByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondServiceError(c, err, "look up ticket")
		return
	}
	c.JSON(http.StatusOK, view)
}

// AvailableTransitions lists the states the ticket can move to next.
func (h *TicketHandler) AvailableTransitions(c *gin.Context) {
	id, ok := pathID(c, "id", "ticket")
	if !ok {
		return
	}
	options, err := h.ticketService.AvailableTransitions(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "list transitions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": options})
}

// CanTransition answers whether ?to=STATE is a legal next state.
func (h *TicketHandler) CanTransition(c *gin.Context) {
	id, ok := pathID(c, "id", "ticket")
	if !ok {
		return
	}
	var q canTransitionQuery
	if !bindQuery(c, &q, "CanTransition") {
		return
	}
	to, _ := models.ParseTicketState(q.To)
	allowed, err := h.ticketService.CanTransition(c.Request.Context(), id, to)
	if err != nil {
		respondServiceError(c, err, "check transition")
		return
	}
	c.JSON(http.StatusOK, gin.H{"to": to, "allowed": allowed})
}

func (h *TicketHandler) AssignTechnician(c *gin.Context) {
	h.withBody(c, "assign technician", &services.AssignTechnicianRequest{}, func(id int64, body interface{}) (*models.Ticket, error) {
		return h.ticketService.AssignTechnician(c.Request.Context(), id, body.(*services.AssignTechnicianRequest).TechnicianID)
	})
}

func (h *TicketHandler) RecordDiagnosis(c *gin.Context) {
	h.withBody(c, "record diagnosis", &services.DiagnosisRequest{}, func(id int64, body interface{}) (*models.Ticket, error) {
		return h.ticketService.RecordDiagnosis(c.Request.Context(), id, *body.(*services.DiagnosisRequest))
	})
}

func (h *TicketHandler) ApproveBudget(c *gin.Context) {
	h.withoutBody(c, "approve budget", h.ticketService.ApproveBudget)
}

func (h *TicketHandler) RejectBudget(c *gin.Context) {
	h.withBody(c, "reject budget", &services.ReasonRequest{}, func(id int64, body interface{}) (*models.Ticket, error) {
		return h.ticketService.RejectBudget(c.Request.Context(), id, body.(*services.ReasonRequest).Reason)
	})
}

func (h *TicketHandler) StartRepair(c *gin.Context) {
	h.withoutBody(c, "start repair", h.ticketService.StartRepair)
}

func (h *TicketHandler) AddNote(c *gin.Context) {
	h.withBody(c, "add repair note", &services.NoteRequest{}, func(id int64, body interface{}) (*models.Ticket, error) {
		return h.ticketService.AddNote(c.Request.Context(), id, body.(*services.NoteRequest).Note)
	})
}

func (h *TicketHandler) CompleteRepair(c *gin.Context) {
	h.withoutBody(c, "complete repair", h.ticketService.CompleteRepair)
}

func (h *TicketHandler) RecordTestResult(c *gin.Context) {
	h.withBody(c, "record test result", &services.TestResultRequest{}, func(id int64, body interface{}) (*models.Ticket, error) {
		return h.ticketService.RecordTestResult(c.Request.Context(), id, *body.(*services.TestResultRequest))
	})
}

func (h *TicketHandler) MarkReady(c *gin.Context) {
	h.withoutBody(c, "mark ready", h.ticketService.MarkReady)
}

// Deliver accepts an empty body; delivery notes are optional.
func (h *TicketHandler) Deliver(c *gin.Context) {
	id, ok := pathID(c, "id", "ticket")
	if !ok {
		return
	}
	var req services.DeliverRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "Deliver") {
		return
	}
	ticket, err := h.ticketService.Deliver(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, err, "deliver ticket")
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *TicketHandler) Cancel(c *gin.Context) {
	h.withBody(c, "cancel ticket", &services.ReasonRequest{}, func(id int64, body interface{}) (*models.Ticket, error) {
		return h.ticketService.Cancel(c.Request.Context(), id, body.(*services.ReasonRequest).Reason)
	})
}

func (h *TicketHandler) ApplyDiscount(c *gin.Context) {
	h.withBody(c, "apply discount", &services.DiscountRequest{}, func(id int64, body interface{}) (*models.Ticket, error) {
		return h.ticketService.ApplyDiscount(c.Request.Context(), id, *body.(*services.DiscountRequest))
	})
}

// ListParts lists the part usages of a ticket.
func (h *TicketHandler) ListParts(c *gin.Context) {
	id, ok := pathID(c, "id", "ticket")
	if !ok {
		return
	}
	usages, err := h.partUsageService.ListUsages(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "list ticket parts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": usages})
}

// AssignPart adds a part to a ticket. Stock is taken at once when the budget is already approved.
func (h *TicketHandler) AssignPart(c *gin.Context) {
	id, ok := pathID(c, "id", "ticket")
	if !ok {
		return
	}
	var req services.AssignPartRequest
	if !bindJSON(c, &req, "AssignPart") {
		return
	}
	usage, err := h.partUsageService.AssignPart(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, err, "assign part")
		return
	}
	c.JSON(http.StatusCreated, usage)
}

func (h *TicketHandler) UpdatePartQuantity(c *gin.Context) {
	usageID, ok := pathID(c, "usageId", "ticket part")
	if !ok {
		return
	}
	var req services.UpdateUsageQuantityRequest
	if !bindJSON(c, &req, "UpdatePartQuantity") {
		return
	}
	usage, err := h.partUsageService.UpdateQuantity(c.Request.Context(), usageID, req.Quantity)
	if err != nil {
		respondServiceError(c, err, "update ticket part")
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (h *TicketHandler) RemovePart(c *gin.Context) {
	usageID, ok := pathID(c, "usageId", "ticket part")
	if !ok {
		return
	}
	if err := h.partUsageService.RemoveUsage(c.Request.Context(), usageID); err != nil {
		respondServiceError(c, err, "remove ticket part")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TicketHandler) withoutBody(c *gin.Context, action string, op func(ctx context.Context, id int64) (*models.Ticket, error)) {
	id, ok := pathID(c, "id", "ticket")
	if !ok {
		return
	}
	ticket, err := op(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, action)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *TicketHandler) withBody(c *gin.Context, action string, body interface{}, op func(id int64, body interface{}) (*models.Ticket, error)) {
	id, ok := pathID(c, "id", "ticket")
	if !ok {
		return
	}
	if !bindJSON(c, body, action) {
		return
	}
	ticket, err := op(id, body)
	if err != nil {
		respondServiceError(c, err, action)
		return
	}
	c.JSON(http.StatusOK, ticket)
}
