package routes

import (
	"net/http"
	"time"

	"github.com/Dosada05/bracket-progression/handlers"
	"github.com/Dosada05/bracket-progression/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	ScoreLimiter   *middleware.RateLimiter
	Metrics        http.Handler
}

func SetupRoutes(
	router *chi.Mux,
	opts Options,
	matchHandler *handlers.MatchHandler,
	tournamentHandler *handlers.TournamentHandler,
	webSocketHandler *handlers.WebSocketHandler,
	healthHandler *handlers.HealthHandler,
	docsHandler *handlers.DocsHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", healthHandler.Healthz)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}
	if docsHandler != nil {
		router.Get("/docs/openapi.json", docsHandler.Spec)
		router.Get("/docs/*", docsHandler.UI)
	}

	authenticate := middleware.Authenticate(opts.JWTSecret)

	// websocket: наблюдатели только читают, аутентификация не нужна
	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		r.Route("/tournaments/{tournamentID}", func(r chi.Router) {
			r.Get("/", tournamentHandler.GetTournament)
			r.Get("/rounds", tournamentHandler.GetRounds)
			r.Get("/progression", tournamentHandler.GetProgression)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Post("/repair", tournamentHandler.Repair)
				r.Post("/autofix", tournamentHandler.AutoFix)
				r.Patch("/status", tournamentHandler.UpdateStatus)
			})
		})

		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/start", matchHandler.StartMatch)
			r.Post("/advance", matchHandler.AdvanceWinner)
			r.Group(func(r chi.Router) {
				if opts.ScoreLimiter != nil {
					r.Use(opts.ScoreLimiter.Middleware)
				}
				r.Post("/score", matchHandler.SubmitScore)
			})
		})
	})
}
