package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/tasting/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	c := d.Coordinator

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Tasting API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, d.Checks).Routes())
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	joinLimiter := newIPRateLimiter(d.JoinRate, d.JoinBurst)

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(d.Issuer))

		r.Post("/sessions", handleCreateSession(logger, c, d.Issuer))
		r.With(rateLimit(joinLimiter)).Post("/join", handleJoin(logger, c, d.Issuer))

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/state", handleState(logger, c))
			r.Get("/results", handleResults(logger, c))
			r.Get("/events", handleEvents(logger, c, d.Broker))
			r.Get("/ws", handleWS(logger, c, d.Broker, d.WSRate, d.WSBurst))

			r.Post("/whiskeys", handleAddWhiskey(logger, c))
			r.Post("/open", handleOpen(logger, c))
			r.Post("/start", handleStart(logger, c))
			r.Post("/advance", handleAdvance(logger, c))
			r.Post("/end-reveal", handleEndReveal(logger, c))
			r.Post("/cancel", handleCancel(logger, c))

			r.Post("/ready", handleReady(logger, c))
			r.Post("/leave", handleLeave(logger, c))
			r.Post("/scores", handleSubmitScore(logger, c))
		})
	})
}
