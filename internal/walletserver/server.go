// Package walletserver exposes the provider callback endpoints, the operator
// launch API, health and metrics over one chi router.
package walletserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/attaboy/seamless/internal/auth"
	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/guard"
	"github.com/attaboy/seamless/internal/handler"
	"github.com/attaboy/seamless/internal/infra"
	"github.com/attaboy/seamless/internal/metrics"
	"github.com/attaboy/seamless/internal/provider"
	"github.com/attaboy/seamless/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps holds everything NewRouter needs. A nil orchestrator leaves that
// provider's routes unmounted.
type Deps struct {
	Orchestrators map[string]*settlement.Orchestrator
	Limiter       *guard.RateLimiter
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Health        map[string]infra.Pinger
	LaunchSecret  string
	Logger        *slog.Logger
}

type server struct {
	orchestrators map[string]*settlement.Orchestrator
	limiter       *guard.RateLimiter
	metrics       *metrics.Metrics
	logger        *slog.Logger

	aix *provider.AIX
	ors *provider.ORS
	sbo *provider.SBO
}

// NewRouter builds the wallet server router.
func NewRouter(d Deps) chi.Router {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{
		orchestrators: d.Orchestrators,
		limiter:       d.Limiter,
		metrics:       d.Metrics,
		logger:        logger,
		aix:           provider.NewAIX(),
		ors:           provider.NewORS(),
		sbo:           provider.NewSBO(),
	}

	r := chi.NewRouter()
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))

	r.Get("/health", handler.HealthHandler(d.Health))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/operator", func(r chi.Router) {
		r.Use(auth.RequireOperatorSecret(d.LaunchSecret))
		r.Post("/{provider}/launch", s.launch)
		r.Get("/{provider}/transactions/{txnID}", s.transactionState)
	})

	if orch := s.orchestrators[provider.NameAIX]; orch != nil {
		r.Route("/aix", func(r chi.Router) {
			r.Use(s.observe(provider.NameAIX))
			s.aixRoutes(r, orch)
		})
	}
	if orch := s.orchestrators[provider.NameORS]; orch != nil {
		r.Route("/ors", func(r chi.Router) {
			r.Use(s.observe(provider.NameORS))
			s.orsRoutes(r, orch)
		})
	}
	if orch := s.orchestrators[provider.NameSBO]; orch != nil {
		r.Route("/sbo", func(r chi.Router) {
			r.Use(s.observe(provider.NameSBO))
			s.sboRoutes(r, orch)
		})
	}
	return r
}

// observe counts provider responses by status class.
func (s *server) observe(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := handler.NewStatusRecorder(w)
			next.ServeHTTP(rec, r)
			s.metrics.ObserveHTTP(name, rec.Status)
		})
	}
}

// admit applies the per-provider, per-caller rate limit.
func (s *server) admit(r *http.Request, name string) error {
	if s.limiter == nil {
		return nil
	}
	res := s.limiter.Check(r.Context(), name+":"+clientIP(r))
	if !res.Allowed {
		return domain.ErrRateLimited(res.Reason)
	}
	return nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// call builds an operation input and runs it.
func call[In any](
	ctx context.Context,
	proof settlement.Proof,
	build func(settlement.Proof) (In, error),
	exec func(context.Context, In) (*settlement.Result, error),
) (*settlement.Result, error) {
	in, err := build(proof)
	if err != nil {
		return nil, err
	}
	return exec(ctx, in)
}

func (s *server) logFailure(name, op string, err error) {
	code := domain.CodeOf(err)
	if code == domain.CodeInternal {
		s.logger.Error("provider callback failed", "provider", name, "op", op, "error", err)
		return
	}
	s.logger.Debug("provider callback rejected", "provider", name, "op", op, "code", code)
}
