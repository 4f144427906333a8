package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	retrievalapp "github.com/astro-web3/permission-filter/internal/app/retrieval"
	"github.com/astro-web3/permission-filter/internal/app/tools"
	"github.com/astro-web3/permission-filter/internal/config"
	"github.com/astro-web3/permission-filter/internal/domain/access"
	retrievaldomain "github.com/astro-web3/permission-filter/internal/domain/retrieval"
	"github.com/astro-web3/permission-filter/internal/domain/token"
	"github.com/astro-web3/permission-filter/internal/infra/cache"
	"github.com/astro-web3/permission-filter/internal/infra/jwks"
	"github.com/astro-web3/permission-filter/internal/infra/pdp"
	"github.com/astro-web3/permission-filter/pkg/logger"
	"github.com/astro-web3/permission-filter/pkg/otel"
	"github.com/astro-web3/permission-filter/pkg/tracer"
)

type Server struct {
	httpServer *http.Server
}

const (
	idleTimeoutMultiplier = 2
	serviceName           = "permission-filter"
)

// NewServer wires the full dependency graph. The base retriever is an
// external collaborator: pass nil to run without the retrieval path (the
// permission-first endpoints keep working).
func NewServer(cfg *config.Config, retriever retrievaldomain.Retriever) (*Server, error) {
	logger.InitLogger(cfg.Observability.LogLevel, cfg.Observability.Format, cfg.Observability.LogSource)

	otelCfg := otel.Config{
		ServiceName:        serviceName,
		EndpointURL:        cfg.Observability.TracingEndpointURL,
		Enabled:            cfg.Observability.TraceEnabled,
		SampleRatio:        cfg.Observability.TraceSampleRatio,
		Insecure:           true,
		ResourceAttributes: make(map[string]string),
	}
	if err := tracer.InitTracer(serviceName, otelCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	keySetCache, err := newKeySetCache(cfg)
	if err != nil {
		return nil, err
	}

	keySource, err := jwks.NewSourceFromConfig(cfg.JWKS.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to configure key source: %w", err)
	}
	cachedSource := jwks.NewCachingSource(keySource, keySetCache, hashCacheKey(cfg.JWKS.URL), cfg.JWKS.CacheTTL)

	var verifierOpts []token.VerifierOption
	if cfg.JWKS.InsecureAllowUnverified {
		verifierOpts = append(verifierOpts, token.WithInsecureAllowUnverified())
	}
	verifier := token.NewVerifier(cachedSource, verifierOpts...)

	pdpClient := pdp.NewClient(cfg.PDP.URL, cfg.PDP.APIKey, cfg.PDP.Timeout)
	accessService := access.NewService(pdpClient, cfg.Retrieval.DefaultResourceType)

	orchestrator := retrievaldomain.NewOrchestrator(retriever, accessService)

	toolsService := tools.NewService(verifier, accessService)
	queryService := retrievalapp.NewQueryService(
		orchestrator,
		cfg.Retrieval.DefaultLimit,
		cfg.Retrieval.DefaultResourceType,
	)

	handler := NewHandler(toolsService, queryService)
	router := NewRouter(handler, cfg)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * idleTimeoutMultiplier,
	}

	return &Server{
		httpServer: httpServer,
	}, nil
}

func newKeySetCache(cfg *config.Config) (jwks.KeySetCache, error) {
	if !cfg.Redis.Enabled {
		return jwks.NewMemoryKeySetCache(), nil
	}

	redisClient, err := cache.NewRedisClient(cfg.Redis.URL, cfg.Redis.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return cache.NewKeySetCache(redisClient), nil
}

func hashCacheKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:])
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
