package router

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"repair_shop_backend/internal/handlers"
	"repair_shop_backend/internal/metrics"
	"repair_shop_backend/internal/middleware"
	"repair_shop_backend/internal/notifications"
	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/internal/services"
	"repair_shop_backend/internal/ticketcode"

	"github.com/gin-gonic/gin"
)

// Deps carries what Setup needs beyond the database.
type Deps struct {
	DB      *sql.DB
	Metrics *metrics.Metrics

	// Counter feeds both code generators; nil uses the Postgres code_sequences table.
	Counter        ticketcode.Counter
	TicketPrefix   string
	PurchasePrefix string

	Notifier notifications.Notifier

	// Locker enables the per-ticket request lock; nil disables it.
	Locker        middleware.Locker
	TicketLockTTL time.Duration
	LockTimeout   time.Duration

	// RefreshTokenTTL defaults to a week when zero.
	RefreshTokenTTL time.Duration
}

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, deps Deps) error {
	db := deps.DB

	// Initialize Repositories
	authRepo := repositories.NewAuthRepository(db)
	clientRepo := repositories.NewClientRepository(db)
	ticketRepo := repositories.NewTicketRepository(db)
	partRepo := repositories.NewPartRepository(db)
	usageRepo := repositories.NewPartUsageRepository(db)
	movementRepo := repositories.NewStockMovementRepository(db)
	purchaseRepo := repositories.NewPurchaseRepository(db)
	tx := repositories.NewTransactor(db, deps.LockTimeout)

	counter := deps.Counter
	if counter == nil {
		counter = repositories.NewSequenceRepository(db)
	}
	ticketCodes, err := ticketcode.NewGenerator(deps.TicketPrefix, counter, ticketRepo.ExistsByCode)
	if err != nil {
		return fmt.Errorf("ticket code generator: %w", err)
	}
	ticketCodes.WithLatest(ticketRepo.LatestCode)
	purchaseCodes, err := ticketcode.NewGenerator(deps.PurchasePrefix, counter, nil)
	if err != nil {
		return fmt.Errorf("purchase code generator: %w", err)
	}

	// Initialize Services
	ledger := services.NewStockLedger(partRepo, movementRepo, deps.Metrics)
	authService := services.NewAuthService(tx, authRepo, repositories.NewRefreshTokenRepository(db), deps.RefreshTokenTTL)
	clientService := services.NewClientService(tx, clientRepo, ticketRepo)
	partService := services.NewPartService(tx, partRepo, movementRepo, ledger)
	partUsageService := services.NewPartUsageService(tx, ticketRepo, partRepo, usageRepo, ledger, deps.Metrics)
	ticketService := services.NewTicketService(tx, ticketRepo, clientRepo, authRepo, usageRepo, partUsageService, ticketCodes, deps.Notifier, deps.Metrics)
	purchaseService := services.NewPurchaseService(tx, purchaseRepo, partRepo, ledger, purchaseCodes)

	// Initialize Handlers
	authHandler := handlers.NewAuthHandler(authService)
	clientHandler := handlers.NewClientHandler(clientService, ticketService)
	ticketHandler := handlers.NewTicketHandler(ticketService, partUsageService)
	partHandler := handlers.NewPartHandler(partService)
	purchaseHandler := handlers.NewPurchaseHandler(purchaseService)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	apiV1 := engine.Group("/api/v1")

	SetupPublicAuthRoutes(apiV1.Group("/auth"), authHandler)
	SetupPublicTicketRoutes(apiV1.Group("/public"), ticketHandler)

	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware())
	{
		SetupAuthenticatedAuthRoutes(authenticated.Group("/auth"), authHandler)
		SetupUserRoutes(authenticated, authHandler)
		SetupClientRoutes(authenticated, clientHandler)
		SetupTicketRoutes(authenticated, ticketHandler, middleware.TicketLock(deps.Locker, deps.TicketLockTTL))
		SetupTicketPartRoutes(authenticated, ticketHandler, middleware.TicketLockBy(deps.Locker, deps.TicketLockTTL, usageTicketID(usageRepo)))
		SetupPartRoutes(authenticated, partHandler)
		SetupStockMovementRoutes(authenticated, partHandler)
		SetupPurchaseRoutes(authenticated, purchaseHandler)
	}
	return nil
}

// usageTicketID maps /ticket-parts/:usageId to the ticket that owns the usage.
func usageTicketID(usages repositories.PartUsageRepository) middleware.TicketIDResolver {
	return func(c *gin.Context) (string, bool) {
		usageID, err := strconv.ParseInt(c.Param("usageId"), 10, 64)
		if err != nil {
			return "", false
		}
		usage, err := usages.GetByID(c.Request.Context(), nil, usageID)
		if err != nil {
			return "", false
		}
		return strconv.FormatInt(usage.TicketID, 10), true
	}
}
