package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/novelia/backend/internal/database"
	mW "github.com/novelia/backend/internal/middleware"
	"github.com/novelia/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Novelia Wallet API
// @version 1.0
// @description Virtual-currency ledger and payout backend for the Novelia reading platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	withdrawalService := services.NewWithdrawalService(db, redisClient)
	walletService := services.NewWalletService(db, withdrawalService)
	purchaseService := services.NewPurchaseService(db, redisClient)
	conversionService := services.NewConversionService(db)
	earningsService := services.NewEarningsService(db)
	bankService := services.NewBankService()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Get("/banks", bankService.GetAllBanks)
		r.Get("/purchases/products", purchaseService.ListProducts)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/wallet/balance", walletService.HandleBalance)
			r.Get("/wallet/ledger", walletService.HandleLedger)
			r.Post("/wallet/convert", conversionService.HandleConvert)
			r.Post("/wallet/ad-reward", conversionService.HandleAdReward)

			r.Post("/purchases/credit", purchaseService.HandleCreditPurchase)

			r.Post("/chapters/unlock", earningsService.HandleUnlockChapter)

			r.Post("/bank-accounts", withdrawalService.HandleCreateBankAccount)
			r.Get("/bank-accounts", withdrawalService.HandleListBankAccounts)
			r.Delete("/bank-accounts/{id}", withdrawalService.HandleDeleteBankAccount)

			r.Post("/withdrawals", withdrawalService.HandleCreateWithdrawal)
			r.Get("/withdrawals", withdrawalService.HandleListWithdrawals)
			r.Get("/withdrawals/{id}", withdrawalService.HandleGetWithdrawal)
			r.Post("/withdrawals/{id}/cancel", withdrawalService.HandleCancelWithdrawal)

			// Moderation endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Get("/admin/withdrawals", withdrawalService.HandleListByStatus)
				r.Post("/admin/withdrawals/{id}/advance", withdrawalService.HandleAdvanceWithdrawal)
				r.Get("/admin/accounts/{userId}/reconcile", walletService.HandleReconcile)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
