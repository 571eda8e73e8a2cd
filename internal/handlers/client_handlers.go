package handlers

import (
	"net/http"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/services"
	"repair_shop_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ClientHandler holds the client service and the ticket service used for a client's history.
type ClientHandler struct {
	clientService services.ClientService
	ticketService services.TicketService
}

// NewClientHandler creates a new ClientHandler.
func NewClientHandler(cs services.ClientService, ts services.TicketService) *ClientHandler {
	return &ClientHandler{clientService: cs, ticketService: ts}
}

// CreateClient handles the creation of a new client.
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req services.CreateClientRequest
	if !bindJSON(c, &req, "CreateClient") {
		return
	}
	client, err := h.clientService.CreateClient(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err, "create client")
		return
	}
	c.JSON(http.StatusCreated, client)
}

// GetClients handles fetching all clients with pagination and search.
func (h *ClientHandler) GetClients(c *gin.Context) {
	var filters models.ClientFilters
	if search := c.Query("search"); search != "" {
		filters.Search = &search
	}
	filters.Page, filters.PageSize = utils.PageParams(c.Query("page"), c.Query("page_size"))

	clients, total, err := h.clientService.GetClients(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, err, "fetch clients")
		return
	}
	if clients == nil {
		clients = []models.Client{}
	}
	paginated(c, clients, total, filters.Page, filters.PageSize)
}

// GetClientByID handles fetching a single client by ID.
func (h *ClientHandler) GetClientByID(c *gin.Context) {
	id, ok := pathID(c, "id", "client")
	if !ok {
		return
	}
	client, err := h.clientService.GetClientByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "fetch client")
		return
	}
	c.JSON(http.StatusOK, client)
}

// SearchClients handles GET /clients/search?q=.
func (h *ClientHandler) SearchClients(c *gin.Context) {
	clients, err := h.clientService.SearchClients(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondServiceError(c, err, "search clients")
		return
	}
	if clients == nil {
		clients = []models.Client{}
	}
	c.JSON(http.StatusOK, gin.H{"data": clients})
}

// ReplaceClient handles PUT /clients/:id.
func (h *ClientHandler) ReplaceClient(c *gin.Context) {
	id, ok := pathID(c, "id", "client")
	if !ok {
		return
	}
	var req services.CreateClientRequest
	if !bindJSON(c, &req, "ReplaceClient") {
		return
	}
	client, err := h.clientService.ReplaceClient(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, err, "update client")
		return
	}
	c.JSON(http.StatusOK, client)
}

// UpdateClient handles PATCH /clients/:id.
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	id, ok := pathID(c, "id", "client")
	if !ok {
		return
	}
	var req services.UpdateClientRequest
	if !bindJSON(c, &req, "UpdateClient") {
		return
	}
	client, err := h.clientService.UpdateClient(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, err, "update client")
		return
	}
	c.JSON(http.StatusOK, client)
}

// DeleteClient handles DELETE /clients/:id.
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	id, ok := pathID(c, "id", "client")
	if !ok {
		return
	}
	if err := h.clientService.DeleteClient(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "delete client")
		return
	}
	c.Status(http.StatusNoContent)
}

// ClientTickets lists the tickets opened for one client, newest first.
func (h *ClientHandler) ClientTickets(c *gin.Context) {
	id, ok := pathID(c, "id", "client")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.clientService.GetClientByID(ctx, id); err != nil {
		respondServiceError(c, err, "fetch client")
		return
	}
	filters := models.TicketFilters{ClientID: &id}
	filters.Page, filters.PageSize = utils.PageParams(c.Query("page"), c.Query("page_size"))
	tickets, total, err := h.ticketService.ListTickets(ctx, filters)
	if err != nil {
		respondServiceError(c, err, "list client tickets")
		return
	}
	paginated(c, tickets, total, filters.Page, filters.PageSize)
}
