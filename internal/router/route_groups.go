package router

import (
	"repair_shop_backend/internal/handlers"
	"repair_shop_backend/internal/middleware"
	"repair_shop_backend/internal/models"

	"github.com/gin-gonic/gin"
)

var (
	anyStaff  = []string{models.RoleAdmin, models.RoleTechnician, models.RoleReceptionist}
	frontDesk = []string{models.RoleAdmin, models.RoleReceptionist}
	workshop  = []string{models.RoleAdmin, models.RoleTechnician}
)

// SetupPublicAuthRoutes registers /register, /login and /refresh.
func SetupPublicAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.POST("/register", authHandler.RegisterUser)
	group.POST("/login", authHandler.LoginUser)
	group.POST("/refresh", authHandler.RefreshToken)
}

func SetupAuthenticatedAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.POST("/logout", authHandler.LogoutUser)
	group.GET("/me", authHandler.GetCurrentUser)
}

// SetupPublicTicketRoutes exposes the status lookup clients use with their ticket code.
func SetupPublicTicketRoutes(group *gin.RouterGroup, ticketHandler *handlers.TicketHandler) {
	group.GET("/tickets/:code", ticketHandler.LookupTicket)
}

func SetupUserRoutes(authenticatedGroup *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	userRoutes := authenticatedGroup.Group("/users")
	userRoutes.Use(middleware.RoleAuthMiddleware(anyStaff...))
	{
		userRoutes.GET("/technicians", authHandler.ListTechnicians)
	}
}

// SetupClientRoutes sets up the client routes.
func SetupClientRoutes(authenticatedGroup *gin.RouterGroup, clientHandler *handlers.ClientHandler) {
	clientRoutes := authenticatedGroup.Group("/clients")
	clientRoutes.Use(middleware.RoleAuthMiddleware(anyStaff...))
	{
		clientRoutes.POST("", middleware.RoleAuthMiddleware(frontDesk...), clientHandler.CreateClient)
		clientRoutes.GET("", clientHandler.GetClients)
		clientRoutes.GET("/search", clientHandler.SearchClients)
		clientRoutes.GET("/:id", clientHandler.GetClientByID)
		clientRoutes.GET("/:id/tickets", clientHandler.ClientTickets)
		clientRoutes.PUT("/:id", middleware.RoleAuthMiddleware(frontDesk...), clientHandler.ReplaceClient)
		clientRoutes.PATCH("/:id", middleware.RoleAuthMiddleware(frontDesk...), clientHandler.UpdateClient)
		clientRoutes.DELETE("/:id", middleware.RoleAuthMiddleware(models.RoleAdmin), clientHandler.DeleteClient)
	}
}

// SetupTicketRoutes sets up the ticket workflow routes. Every mutation on an
// existing ticket goes through ticketLock; see SetupTicketPartRoutes for
// usage edits.
func SetupTicketRoutes(authenticatedGroup *gin.RouterGroup, ticketHandler *handlers.TicketHandler, ticketLock gin.HandlerFunc) {
	ticketRoutes := authenticatedGroup.Group("/tickets")
	ticketRoutes.Use(middleware.RoleAuthMiddleware(anyStaff...))
	{
		ticketRoutes.POST("", middleware.RoleAuthMiddleware(frontDesk...), ticketHandler.CreateTicket)
		ticketRoutes.GET("", ticketHandler.ListTickets)
		ticketRoutes.GET("/active", ticketHandler.ActiveTickets)
		ticketRoutes.GET("/:id", ticketHandler.GetTicket)
		ticketRoutes.GET("/:id/transitions", ticketHandler.AvailableTransitions)
		ticketRoutes.GET("/:id/can-transition", ticketHandler.CanTransition)
		ticketRoutes.GET("/:id/parts", ticketHandler.ListParts)

		locked := ticketRoutes.Group("/:id")
		locked.Use(ticketLock)
		{
			locked.POST("/assign-technician", middleware.RoleAuthMiddleware(frontDesk...), ticketHandler.AssignTechnician)
			locked.POST("/diagnosis", middleware.RoleAuthMiddleware(workshop...), ticketHandler.RecordDiagnosis)
			locked.POST("/approve", middleware.RoleAuthMiddleware(frontDesk...), ticketHandler.ApproveBudget)
			locked.POST("/reject", middleware.RoleAuthMiddleware(frontDesk...), ticketHandler.RejectBudget)
			locked.POST("/start-repair", middleware.RoleAuthMiddleware(workshop...), ticketHandler.StartRepair)
			locked.POST("/notes", middleware.RoleAuthMiddleware(workshop...), ticketHandler.AddNote)
			locked.POST("/complete-repair", middleware.RoleAuthMiddleware(workshop...), ticketHandler.CompleteRepair)
			locked.POST("/test-result", middleware.RoleAuthMiddleware(workshop...), ticketHandler.RecordTestResult)
			locked.POST("/ready", middleware.RoleAuthMiddleware(workshop...), ticketHandler.MarkReady)
			locked.POST("/deliver", middleware.RoleAuthMiddleware(frontDesk...), ticketHandler.Deliver)
			locked.POST("/cancel", middleware.RoleAuthMiddleware(frontDesk...), ticketHandler.Cancel)
			locked.POST("/discount", middleware.RoleAuthMiddleware(frontDesk...), ticketHandler.ApplyDiscount)
			locked.POST("/parts", middleware.RoleAuthMiddleware(workshop...), ticketHandler.AssignPart)
		}
	}
}

// SetupTicketPartRoutes covers part usages addressed by their own id. usageLock
// takes the lock of the ticket owning the usage.
func SetupTicketPartRoutes(authenticatedGroup *gin.RouterGroup, ticketHandler *handlers.TicketHandler, usageLock gin.HandlerFunc) {
	usageRoutes := authenticatedGroup.Group("/ticket-parts")
	usageRoutes.Use(middleware.RoleAuthMiddleware(workshop...), usageLock)
	{
		usageRoutes.PATCH("/:usageId", ticketHandler.UpdatePartQuantity)
		usageRoutes.DELETE("/:usageId", ticketHandler.RemovePart)
	}
}

// SetupPartRoutes sets up the parts catalog routes.
func SetupPartRoutes(authenticatedGroup *gin.RouterGroup, partHandler *handlers.PartHandler) {
	partRoutes := authenticatedGroup.Group("/parts")
	partRoutes.Use(middleware.RoleAuthMiddleware(anyStaff...))
	{
		partRoutes.GET("", partHandler.ListParts)
		partRoutes.GET("/low-stock", partHandler.LowStock)
		partRoutes.GET("/out-of-stock", partHandler.OutOfStock)
		partRoutes.GET("/:id", partHandler.GetPart)
		partRoutes.GET("/:id/movements", partHandler.PartMovements)

		admin := partRoutes.Group("")
		admin.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
		{
			admin.POST("", partHandler.CreatePart)
			admin.PUT("/:id", partHandler.UpdatePart)
			admin.POST("/:id/adjust", partHandler.AdjustStock)
		}
	}
}

func SetupStockMovementRoutes(authenticatedGroup *gin.RouterGroup, partHandler *handlers.PartHandler) {
	movementRoutes := authenticatedGroup.Group("/stock-movements")
	movementRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
	{
		movementRoutes.GET("", partHandler.ListMovements)
		movementRoutes.GET("/export", partHandler.ExportMovements)
	}
}

// SetupPurchaseRoutes sets up the supplier purchase routes.
func SetupPurchaseRoutes(authenticatedGroup *gin.RouterGroup, purchaseHandler *handlers.PurchaseHandler) {
	purchaseRoutes := authenticatedGroup.Group("/purchases")
	purchaseRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
	{
		purchaseRoutes.POST("", purchaseHandler.CreatePurchase)
		purchaseRoutes.GET("", purchaseHandler.ListPurchases)
		purchaseRoutes.GET("/:id", purchaseHandler.GetPurchase)
		purchaseRoutes.POST("/:id/receive", purchaseHandler.ReceivePurchase)
		purchaseRoutes.POST("/:id/cancel", purchaseHandler.CancelPurchase)
	}
}
