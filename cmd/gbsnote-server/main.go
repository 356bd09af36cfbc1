package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jkwon/gbsnote/pkg/gbsnote/access"
	"github.com/jkwon/gbsnote/pkg/gbsnote/admin"
	"github.com/jkwon/gbsnote/pkg/gbsnote/apikeys"
	"github.com/jkwon/gbsnote/pkg/gbsnote/attendance"
	"github.com/jkwon/gbsnote/pkg/gbsnote/auth"
	"github.com/jkwon/gbsnote/pkg/gbsnote/database"
	"github.com/jkwon/gbsnote/pkg/gbsnote/delegation"
	"github.com/jkwon/gbsnote/pkg/gbsnote/groups"
	"github.com/jkwon/gbsnote/pkg/gbsnote/history"
	"github.com/jkwon/gbsnote/pkg/gbsnote/importexport"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"github.com/jkwon/gbsnote/pkg/gbsnote/organizations"
	"github.com/jkwon/gbsnote/pkg/gbsnote/statistics"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/jkwon/gbsnote/api/swagger"
)

// @title GBSNote API
// @version 1.0
// @description Church small-group attendance tracking: departments, villages, GBS groups, time-versioned rosters and weekly statistics.

// @contact.name GBSNote Support
// @contact.url https://github.com/jkwon/gbsnote

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token or API key. Format: "Bearer {token}"

func main() {
	// Get database path from environment or use default
	dbPath := os.Getenv("GBSNOTE_DB_PATH")
	if dbPath == "" {
		dbPath = "gbsnote.db"
	}

	// Connect to database
	if err := database.Connect(dbPath); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	db := database.GetDB()

	// Run auto-migrations
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Create default admin user if no admin exists
	if err := ensureAdminExists(); err != nil {
		log.Fatalf("Failed to ensure admin user exists: %v", err)
	}

	// Domain services
	ledger := history.NewService(db)
	grants := delegation.NewService(db, ledger)
	resolver := access.NewResolver(db, ledger, grants)
	attendanceSvc := attendance.NewService(db, resolver, ledger)
	statsSvc := statistics.NewService(db, ledger)
	exportSvc := importexport.NewService(db, ledger, statsSvc)

	// Set up Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "gbsnote",
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(db)
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Combined auth middleware (accepts JWT or API key)
		combinedAuth := apikeys.CombinedAuthMiddleware(db)

		// API keys routes (JWT only - need to be logged in to manage keys)
		apiKeysHandler := apikeys.NewHandler(db)
		apiKeysHandler.RegisterRoutes(api.Group("", auth.AuthMiddleware()))

		// Organization tree (protected - accepts JWT or API key)
		orgHandler := organizations.NewHandler(db)
		orgHandler.RegisterRoutes(api.Group("", combinedAuth))

		// Ledger and delegation routes (protected - accepts JWT or API key)
		groupsHandler := groups.NewHandler(db, ledger, grants, resolver)
		groupsHandler.RegisterRoutes(api.Group("", combinedAuth))

		// Attendance routes (protected - accepts JWT or API key)
		attendanceHandler := attendance.NewHandler(attendanceSvc)
		attendanceHandler.RegisterRoutes(api.Group("", combinedAuth))

		// Statistics routes (protected - accepts JWT or API key)
		statsHandler := statistics.NewHandler(db, statsSvc, resolver)
		statsHandler.RegisterRoutes(api.Group("", combinedAuth))

		// Import/Export routes (protected - accepts JWT or API key)
		importExportHandler := importexport.NewHandler(db, exportSvc, resolver)
		importExportHandler.RegisterRoutes(api.Group("", combinedAuth))

		// Admin routes (JWT only, admin role required)
		adminHandler := admin.NewHandler(db)
		adminGroup := api.Group("/admin")
		adminGroup.Use(auth.AuthMiddleware(), auth.RequireAdmin())
		adminHandler.RegisterRoutes(adminGroup)
	}

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting GBSNote server on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// ensureAdminExists creates a default admin user if no admin exists in the database.
func ensureAdminExists() error {
	db := database.GetDB()

	// Check if any admin user exists
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil // Admin already exists
	}

	// Create default admin user
	hashedPassword, err := auth.HashPassword("changeme")
	if err != nil {
		return err
	}

	adminUser := models.User{
		Email:        "admin@gbsnote.local",
		Name:         "Admin",
		PasswordHash: hashedPassword,
		Role:         models.RoleAdmin,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	log.Printf("Created default admin user: admin@gbsnote.local (password: changeme)")
	return nil
}
