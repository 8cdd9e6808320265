package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vivaroom/internal/cache"
	"vivaroom/internal/config"
	"vivaroom/internal/repository"
	"vivaroom/internal/service"
	"vivaroom/internal/transport/rest"
	"vivaroom/internal/transport/ws"
)

// @title Viva Room API
// @version 1.0
// @description Oral-examination session orchestrator: waiting room, signaling relay, recording upload
// @host localhost:8080
// @BasePath /v1
func main() {
	log.Println("started")
	ctx := context.Background()

	cfg := config.FromEnv()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	// Ping MongoDB
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.Database)

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()

	// Ping Redis
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize signaling hub
	wsHub := ws.NewHub()
	log.Println("Signaling hub started")

	// Initialize repositories
	sessionRepo := repository.NewSessionRepo(db)
	participantRepo := repository.NewParticipantRepo(db)
	recordingRepo := repository.NewRecordingRepo(db)

	// Initialize caches
	sessionCache := cache.NewSessionCache(rdb)
	admissionCache := cache.NewAdmissionCache(rdb)

	// Initialize services
	authSvc := service.NewAuthService()
	sessionSvc := service.NewSessionService(sessionRepo, sessionCache)
	admissionSvc := service.NewAdmissionService(sessionRepo, participantRepo, sessionCache, admissionCache, authSvc)
	recordingSvc := service.NewRecordingService(recordingRepo)

	// Inject broadcaster (wsHub implements service.Broadcaster)
	sessionSvc.SetBroadcaster(wsHub)

	// Create router with container
	container := &rest.Container{
		AuthService:      authSvc,
		SessionService:   sessionSvc,
		AdmissionService: admissionSvc,
		RecordingService: recordingSvc,
		WSHub:            wsHub,
	}

	router := rest.NewRouter(container)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		log.Printf("Examiner auth: username=%s", os.Getenv("HOST_USERNAME"))
		log.Println("Endpoints:")
		log.Println("  POST /v1/auth/login")
		log.Println("  POST/GET /v1/sessions")
		log.Println("  POST /v1/sessions/{id}/join")
		log.Println("  GET  /v1/sessions/{id}/me")
		log.Println("  GET  /v1/sessions/{id}/participants")
		log.Println("  POST /v1/sessions/{id}/start|complete|missed")
		log.Println("  POST/GET /v1/sessions/{id}/recording")
		log.Println("  WS   /v1/ws/sessions/{id}")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
