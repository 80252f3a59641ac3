package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/xela-labs45/firstChoiceCoverPages/db"
	"github.com/xela-labs45/firstChoiceCoverPages/handlers"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	templatePath := os.Getenv("TEMPLATE_PATH")
	if templatePath == "" {
		templatePath = "template.docx"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Initialize Redis Client
	redisClient := db.InitializeRedisClient()

	// Create Redis Service
	redisService := db.NewRedisService(redisClient)

	// Make sure the form has a subject catalogue to offer
	if err := redisService.SeedDefaultSubjects(); err != nil {
		log.Printf("Warning: could not seed subject presets: %v", err)
	}

	// Create API Handler (injecting the service and template location)
	apiHandler := handlers.NewAPIHandler(redisService, templatePath)

	// Initialize Gin router
	router := gin.Default()

	// Setup API routes
	api := router.Group("/api")
	{
		// Template routes
		api.GET("/template", apiHandler.TemplateStatus)
		api.POST("/template", apiHandler.UploadTemplate)

		// Generation routes
		api.POST("/generate", apiHandler.Generate)
		api.POST("/classes/:classId/generate", apiHandler.GenerateForClass)

		// Subject preset routes
		api.GET("/subjects", apiHandler.GetSubjects)
		api.POST("/subjects", apiHandler.AddSubject)

		// Class roster routes
		api.GET("/classes", apiHandler.GetAllClasses)
		api.GET("/classes/:classId", apiHandler.GetClassByID)
		api.POST("/classes", apiHandler.AddClass)
		api.GET("/classes/:classId/students", apiHandler.GetStudentsByClass)

		// Import route
		api.POST("/import/students", apiHandler.ImportStudents)

		// Ping route
		api.GET("/ping", handlers.PingHandler)
	}

	// Start the server
	log.Printf("Starting server on port %s (template: %s)", port, templatePath)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
