package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cartx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/cart"
	catalogx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/catalog"
	orchestratorx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/agents/orchestrator"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

type Config struct {
	Addr              string        `split_words:"true" default:":8080"`
	ReadTimeout       time.Duration `split_words:"true" default:"30s"`
	WriteTimeout      time.Duration `split_words:"true" default:"120s"`
	RateLimitRequests int           `split_words:"true" default:"60"`
	RateLimitWindow   time.Duration `split_words:"true" default:"1m"`
	AllowedOrigins    []string      `split_words:"true" default:"https://*,http://*"`
}

// Conversations is the session surface the handlers drive.
type Conversations interface {
	StartOrContinue(ctx context.Context, conversationID, text string, opts ...orchestratorx.TurnOption) (orchestratorx.TurnResult, error)
	Resume(ctx context.Context, conversationID, decision string) (orchestratorx.TurnResult, error)
	Snapshot(ctx context.Context, conversationID string) (*statex.ConversationState, error)
}

type CartViewer interface {
	View(conversationID string) ([]cartx.Line, error)
}

// SignatureVerifier checks signed approval callbacks.
type SignatureVerifier interface {
	Verify(signature string, body []byte) error
}

type Deps struct {
	Conversations Conversations
	Carts         CartViewer
	Catalog       *catalogx.Catalog

	// Verifier enables the approval webhook when set.
	Verifier SignatureVerifier
}

func NewRouter(cfg Config, deps Deps) http.Handler {
	h := &handler{
		conversations: deps.Conversations,
		carts:         deps.Carts,
		catalog:       deps.Catalog,
		verifier:      deps.Verifier,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Upstash-Signature"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 && cfg.RateLimitWindow > 0 {
			r.Use(httprate.Limit(
				cfg.RateLimitRequests,
				cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				}),
			))
		}

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", h.createConversation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getConversation)
				r.Post("/messages", h.sendMessage)
				r.Post("/resume", h.resume)
				r.Get("/cart", h.getCart)
			})
		})

		if h.verifier != nil {
			r.Post("/webhooks/approval", h.approvalWebhook)
		}
	})

	return r
}

func NewServer(cfg Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
}
