package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llamachat/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	Switch(ctx context.Context, model string) (string, error)
	Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error

	CreateConversation() types.ConversationResponse
	Conversation(id string) (types.ConversationResponse, error)
	DeleteConversation(id string) error
	StopConversation(id string) error
	Converse(ctx context.Context, id, text string, w io.Writer, flush func()) error
}

// NewMux builds the HTTP router over svc.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		origins, methods, headers := corsDefaults()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: methods,
			AllowedHeaders: headers,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints; NDJSON streams are left alone
	r.Use(middleware.Compress(5, "application/json"))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(InflightMiddleware)
		r.Get("/models", handleModels(svc))
		r.Get("/status", handleStatus(svc))
		r.Post("/switch", handleSwitch(svc))
		r.Post("/generate", handleGenerate(svc))
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", handleCreateConversation(svc))
			r.Get("/{id}", handleGetConversation(svc))
			r.Delete("/{id}", handleDeleteConversation(svc))
			r.Post("/{id}/messages", handlePostMessage(svc))
			r.Post("/{id}/stop", handleStopConversation(svc))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}
