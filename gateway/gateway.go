package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	_ "github.com/Tgsps/coffee-sub000/docs"
	"github.com/Tgsps/coffee-sub000/pkg/auth"
	"github.com/Tgsps/coffee-sub000/pkg/config"
	"github.com/Tgsps/coffee-sub000/pkg/events"
	"github.com/Tgsps/coffee-sub000/pkg/metrics"
	"github.com/Tgsps/coffee-sub000/pkg/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

type OrderNotifier interface {
	Notify(evt events.OrderEvent)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Deps are the collaborators the handlers use. Limiter and Metrics are
// optional.
type Deps struct {
	Products repository.ProductStore
	Users    repository.UserStore
	Orders   repository.OrderStore
	Audit    repository.AuditStore
	Ping     func(ctx context.Context) error
	Backend  string

	Hasher  *auth.Hasher
	Tokens  *auth.TokenIssuer
	Events  OrderNotifier
	Limiter RateLimiter
	Metrics *metrics.Metrics
}

type Gateway struct {
	config *config.Config
	logger *zap.Logger
	router *gin.Engine
	server *http.Server
	deps   Deps
}

func NewGateway(cfg *config.Config, logger *zap.Logger, deps Deps) *Gateway {
	gin.SetMode(cfg.Server.Mode)
	setupValidation()

	router := gin.New()
	router.Use(requestID())
	router.Use(loggerMiddleware(logger))
	router.Use(gin.CustomRecovery(recoveryHandler(logger)))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}

	g := &Gateway{
		config: cfg,
		logger: logger,
		router: router,
		deps:   deps,
	}
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.GET("/health", g.health)
	if g.deps.Metrics != nil {
		g.router.GET("/metrics", gin.WrapH(g.deps.Metrics.Handler()))
	}
	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := g.router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", g.register)
			authGroup.POST("/login", g.login)
			authGroup.GET("/me", g.requireAuth(), g.me)
		}

		products := api.Group("/products")
		{
			products.GET("", g.listProducts)
			products.GET("/:id", g.getProduct)
			products.POST("", g.requireAuth(), g.requireAdmin(), g.createProduct)
			products.PUT("/:id", g.requireAuth(), g.requireAdmin(), g.updateProduct)
			products.DELETE("/:id", g.requireAuth(), g.requireAdmin(), g.deleteProduct)
			products.POST("/:id/reviews", g.requireAuth(), g.createReview)
		}

		users := api.Group("/users", g.requireAuth())
		{
			users.GET("/profile", g.getProfile)
			users.PUT("/profile", g.updateProfile)
			users.GET("", g.requireAdmin(), g.listUsers)
			users.GET("/:id", g.requireAdmin(), g.getUser)
			users.PUT("/:id/role", g.requireAdmin(), g.updateUserRole)
		}

		orders := api.Group("/orders", g.requireAuth())
		{
			orders.POST("", g.createOrder)
			orders.GET("/mine", g.listMyOrders)
			orders.GET("", g.requireAdmin(), g.listOrders)
			orders.GET("/:id", g.getOrder)
			orders.PUT("/:id/pay", g.payOrder)
			orders.PUT("/:id/deliver", g.requireAdmin(), g.deliverOrder)
			orders.GET("/:id/history", g.requireAdmin(), g.orderHistory)
		}
	}
}

// Handler exposes the router, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	addr := g.config.Server.Addr()
	g.server = &http.Server{
		Addr:              addr,
		Handler:           g.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.logger.Info("Gateway starting", zap.String("address", addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "backend": g.deps.Backend}
	if g.deps.Ping != nil {
		if err := g.deps.Ping(c.Request.Context()); err != nil {
			g.logger.Warn("Health check failed", zap.Error(err))
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

const requestIDHeader = "X-Request-ID"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

func recoveryHandler(logger *zap.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		logger.Error("Panic recovered",
			zap.String("request_id", c.GetString("request_id")),
			zap.Any("panic", recovered),
			zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": internalErrorMessage})
	}
}
