package server

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"easymanager/internal/catalog"
	"easymanager/internal/handlers"
	"easymanager/internal/middleware"
	"easymanager/internal/models"
	"easymanager/internal/realtime"
	"easymanager/internal/reporting"
	"easymanager/internal/stock"
	"easymanager/internal/store"
)

type Deps struct {
	Store     store.Store
	Catalog   *catalog.Service
	Stock     *stock.Service
	Reports   *reporting.Aggregator
	Notifier  handlers.AdminNotifier
	Mailer    handlers.AccountMailer
	// Google is nil when Google sign-in is not configured.
	Google    handlers.GoogleVerifier
	Events    handlers.EventSource
	Publisher realtime.Publisher

	JWTSecret     string
	AccessTTL     time.Duration
	ResetURL      string
	ResetTTL      time.Duration
	CORSOrigins   []string
	AuthRateLimit string
	Location      *time.Location
	Logger        *zap.Logger
}

func NewRouter(d Deps) (*gin.Engine, error) {
	authLimit, err := middleware.RateLimit(d.AuthRateLimit)
	if err != nil {
		return nil, fmt.Errorf("auth rate limit: %w", err)
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(d.Logger), middleware.Recovery(d.Logger))
	r.Use(cors.New(corsConfig(d.CORSOrigins)))

	api := r.Group("/api")
	api.Use(middleware.OptionalIdentity(d.JWTSecret))

	api.GET("/health", handlers.Health(d.Store, d.Logger))

	products := api.Group("/products")
	{
		products.GET("", handlers.ListProducts(d.Catalog, d.Reports, d.Store, d.Logger))
		products.GET("/low-stock", handlers.LowStockProducts(d.Catalog, d.Store, d.Logger))
		products.GET("/nearly-expired", handlers.NearlyExpiredProducts(d.Catalog, d.Store, d.Logger))
		products.GET("/expired", handlers.ExpiredProducts(d.Catalog, d.Store, d.Logger))
		products.GET("/:id", handlers.GetProduct(d.Catalog, d.Logger))
		products.POST("", handlers.CreateProduct(d.Catalog, d.Location, d.Logger))
		products.PUT("/:id", handlers.UpdateProduct(d.Catalog, d.Location, d.Logger))
		products.PATCH("/:id/expiration", handlers.UpdateProductExpiration(d.Catalog, d.Location, d.Logger))
		products.PUT("/:id/stock", handlers.UpdateProductStock(d.Stock, d.Logger))
		products.DELETE("/:id", handlers.DeleteProduct(d.Catalog, d.Logger))
	}

	bills := api.Group("/bills")
	{
		bills.GET("", handlers.ListBills(d.Store, d.Store, d.Logger))
		bills.GET("/count-today", handlers.CountBillsToday(d.Reports, d.Store, d.Logger))
		bills.POST("", handlers.CreateBill(d.Stock, d.Location, d.Logger))
		bills.PUT("/:id", handlers.UpdateBill(d.Stock, d.Location, d.Logger))
		bills.DELETE("/:id", handlers.DeleteBill(d.Stock, d.Logger))
	}

	sales := api.Group("/sales")
	{
		sales.GET("", handlers.ListSales(d.Store, d.Store, d.Logger))
		sales.POST("", handlers.CreateSale(d.Store, d.Reports, d.Publisher, d.Location, d.Logger))
		sales.GET("/daily", handlers.DailySales(d.Reports, d.Store, d.Logger))
		sales.GET("/monthly", handlers.MonthlySales(d.Reports, d.Store, d.Logger))
		sales.GET("/:timeRange", handlers.SalesSeries(d.Reports, d.Store, d.Logger))
	}

	api.GET("/reports/store-status", handlers.StoreStatusReport(d.Reports, d.Store, d.Logger))

	api.GET("/employees", handlers.ListEmployees(d.Store, d.Store, d.Logger))
	api.POST("/employees",
		middleware.AuthGuard(d.JWTSecret, models.RoleAdmin, models.RoleManager),
		handlers.CreateEmployee(d.Store, d.Location, d.Logger),
	)

	reset := handlers.PasswordReset{Secret: d.JWTSecret, URL: d.ResetURL, TTL: d.ResetTTL}

	auth := api.Group("/auth")
	auth.Use(authLimit)
	{
		auth.POST("/register", handlers.Register(d.Store, d.JWTSecret, d.AccessTTL, d.Logger))
		auth.POST("/login", handlers.Login(d.Store, d.JWTSecret, d.AccessTTL, d.Logger))
		auth.GET("/me", middleware.AuthGuard(d.JWTSecret), handlers.GetMe(d.Store, d.Logger))
		auth.POST("/google", handlers.GoogleLogin(d.Google, d.Store, d.JWTSecret, d.AccessTTL, d.Logger))
		auth.POST("/reset-password-request", handlers.RequestPasswordReset(d.Store, d.Mailer, reset, d.Logger))
		auth.POST("/reset-password", handlers.ResetPassword(d.Store, reset, d.Logger))
		auth.POST("/send-credentials",
			middleware.AuthGuard(d.JWTSecret, models.RoleAdmin, models.RoleManager),
			handlers.SendCredentials(d.Mailer, d.Logger),
		)
	}

	api.POST("/notify/admin", handlers.NotifyAdmin(d.Notifier, d.Logger))

	api.GET("/events", handlers.StreamEvents(d.Events, d.Logger))
	api.POST("/events/bill", handlers.RelayBillEvent(d.Publisher, d.Logger))

	return r, nil
}

// corsConfig allows the configured origins with credentials. An empty list
// or "*" opens the API to any origin without credentials.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.TraceIDHeader},
		ExposeHeaders: []string{"X-Total-Count", middleware.TraceIDHeader},
		MaxAge:        12 * time.Hour,
	}

	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}

	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
