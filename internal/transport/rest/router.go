package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"vivaroom/internal/service"
	"vivaroom/internal/transport/rest/handler"
	"vivaroom/internal/transport/rest/middleware"
	"vivaroom/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService      *service.AuthService
	SessionService   *service.SessionService
	AdmissionService *service.AdmissionService
	RecordingService *service.RecordingService
	WSHub            *ws.Hub
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	sessionHandler := handler.NewSessionHandler(c.SessionService)
	admissionHandler := handler.NewAdmissionHandler(c.AdmissionService, c.AuthService)
	recordingHandler := handler.NewRecordingHandler(c.RecordingService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.AdmissionService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{id}/join", admissionHandler.Join).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET", "OPTIONS")

	// Signaling socket (token in query param, admission checked on upgrade)
	v1.HandleFunc("/ws/sessions/{id}", wsHandler.RoomWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Examiner routes (require examiner auth)
	hostRoutes := v1.NewRoute().Subrouter()
	hostRoutes.Use(authMW.RequireExaminer)

	hostRoutes.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions", sessionHandler.List).Methods("GET", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/start", sessionHandler.Start).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/complete", sessionHandler.Complete).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/missed", sessionHandler.Missed).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/participants", admissionHandler.Participants).Methods("GET", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/participants/admit-all", admissionHandler.AdmitAll).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/participants/{participantId}/admit", admissionHandler.Admit).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/participants/{participantId}/reject", admissionHandler.Reject).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/recording", recordingHandler.Upload).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/sessions/{id}/recording", recordingHandler.Get).Methods("GET", "OPTIONS")

	// Guest routes (require participant token)
	guestRoutes := v1.NewRoute().Subrouter()
	guestRoutes.Use(authMW.RequireParticipant)

	guestRoutes.HandleFunc("/sessions/{id}/me", admissionHandler.MyStatus).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
