package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/util"

	appconfig "github.com/antinvestor/releasegate/apps/gatekeeper/config"
	"github.com/antinvestor/releasegate/apps/gatekeeper/middleware"
	"github.com/antinvestor/releasegate/apps/gatekeeper/service/assessment"
	"github.com/antinvestor/releasegate/apps/gatekeeper/service/handlers"
	"github.com/antinvestor/releasegate/apps/gatekeeper/service/queue"
	"github.com/antinvestor/releasegate/internal/events"
	"github.com/antinvestor/releasegate/internal/llm"
	"github.com/antinvestor/releasegate/internal/pipeline"
	"github.com/antinvestor/releasegate/internal/policy"
)

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.GatekeeperConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "release_gatekeeper"
	}

	serviceOpts := []frame.Option{frame.WithConfig(&cfg)}
	if cfg.RequireAuthentication {
		serviceOpts = append(serviceOpts, frame.WithRegisterServerOauth2Client())
	}

	ctx, svc := frame.NewServiceWithContext(ctx, serviceOpts...)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	// ==========================================================================
	// Release Policy
	// ==========================================================================

	pol, err := policy.Resolve(cfg.PolicyPath)
	if err != nil {
		log.WithError(err).Fatal("invalid release policy")
	}

	runner, err := pipeline.NewRunner(pol)
	if err != nil {
		log.WithError(err).Fatal("could not create assessment runner")
	}

	var engine llm.Engine
	if cfg.ModificationEnabled() {
		client, clientErr := llm.NewModificationClient(cfg.LLM)
		if clientErr != nil {
			log.WithError(clientErr).Fatal("could not create modification engine")
		}
		engine = client
	} else {
		log.Info("no LLM provider configured, intents will be rejected")
	}

	evaluator := assessment.NewEvaluator(runner, engine, cfg.AssessmentTimeout())

	// ==========================================================================
	// Deduplication Backend
	// ==========================================================================

	backends, err := events.NewBackendsWithFallback(ctx, cfg.BackendConfig())
	if err != nil {
		log.WithError(err).Fatal("could not create deduplication backend")
	}
	defer func() {
		if closeErr := backends.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("could not close backends")
		}
	}()

	qMan := svc.QueueManager()

	// ==========================================================================
	// Register Publishers
	// ==========================================================================

	assessmentRequestPublisher := frame.WithRegisterPublisher(
		cfg.QueueAssessmentRequestName,
		cfg.QueueAssessmentRequestURI,
	)

	assessmentResultPublisher := frame.WithRegisterPublisher(
		cfg.QueueAssessmentResultName,
		cfg.QueueAssessmentResultURI,
	)

	// ==========================================================================
	// Register Subscribers
	// ==========================================================================

	assessmentRequestSubscriber := frame.WithRegisterSubscriber(
		cfg.QueueAssessmentRequestName,
		cfg.QueueAssessmentRequestURI,
		queue.NewAssessmentRequestHandler(&cfg, evaluator, backends.Deduplication, qMan),
	)

	// ==========================================================================
	// Setup HTTP Server
	// ==========================================================================

	limiter := middleware.NewRateLimiter(
		cfg.RateLimitRequestsPerMinute,
		cfg.RateLimitBurstSize,
		middleware.WithExemptPaths("/health", "/ready"),
	)
	defer limiter.Stop()

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if healthErr := backends.HealthCheck(r.Context()); healthErr != nil {
			util.Log(r.Context()).WithError(healthErr).Warn("deduplication backend unhealthy")
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})

	mux.Handle("/api/v1/assessments", handlers.NewAssessmentRequestHandler(&cfg, evaluator, qMan))

	var httpHandler http.Handler = mux
	if cfg.RequireAuthentication {
		authenticator := svc.SecurityManager().GetAuthenticator(ctx)
		httpHandler = middleware.NewAuthenticator(authenticator, "/health", "/ready").Middleware(httpHandler)
	}

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(limiter.Middleware(httpHandler)),
		// Publishers
		assessmentRequestPublisher,
		assessmentResultPublisher,
		// Subscribers
		assessmentRequestSubscriber,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting release gatekeeper service...",
		"batch_size", pol.BatchSize,
		"pass_ceiling", pol.Risk.Gates.Pass,
		"warn_ceiling", pol.Risk.Gates.Warn,
	)
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "service": "gatekeeper"})
}
