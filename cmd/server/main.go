package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mstream "github.com/haowjy/meridian-stream-go"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"council/internal/auth"
	"council/internal/capabilities"
	"council/internal/config"
	"council/internal/domain/models/llm"
	"council/internal/domain/repositories"
	approvalRepo "council/internal/domain/repositories/approval"
	contentRepo "council/internal/domain/repositories/content"
	llmRepo "council/internal/domain/repositories/llm"
	"council/internal/handler"
	"council/internal/middleware"
	"council/internal/repository/memory"
	"council/internal/repository/postgres"
	postgresApproval "council/internal/repository/postgres/approval"
	postgresContent "council/internal/repository/postgres/content"
	postgresLLM "council/internal/repository/postgres/llm"
	serviceApproval "council/internal/service/approval"
	serviceAuth "council/internal/service/auth"
	serviceLLM "council/internal/service/llm"
	"council/internal/service/llm/agentloop"
	"council/internal/service/llm/consensus"
	"council/internal/service/llm/fanout"
	"council/internal/service/llm/orchestrator"
	"council/internal/service/llm/streaming"
	"council/internal/service/llm/tools"
	"council/internal/service/llm/tools/external"
)

// storage bundles the repositories backing one storage mode.
type storage struct {
	name          string
	conversations llmRepo.ConversationStore
	approvals     approvalRepo.ApprovalRepository
	content       contentRepo.ContentStore
	tx            repositories.TransactionManager
	close         func()
}

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		f, err := config.SetupLogFile(cfg.LogDir, 10)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer f.Close()
		logOut = io.MultiWriter(os.Stdout, f)
	}
	logger := config.NewLogger(cfg, logOut)
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.close()

	// Providers
	caps, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load model capabilities: %v", err)
	}
	providers, err := serviceLLM.SetupProviders(cfg, caps, logger)
	if err != nil {
		log.Fatalf("Failed to set up providers: %v", err)
	}

	// Tools. Google tools register only when a token is configured.
	var drive external.DriveClient
	var calendar external.CalendarClient
	if cfg.GoogleAccessToken != "" {
		tokens := external.NewStaticTokenProvider(cfg.GoogleAccessToken)
		drive = external.NewGoogleDrive(tokens)
		calendar = external.NewGoogleCalendar(tokens)
	} else {
		logger.Warn("GOOGLE_ACCESS_TOKEN not set - drive and calendar tools not available")
	}

	toolRegistry, err := tools.NewToolRegistryBuilder().
		WithContentTools(store.content).
		WithDriveTools(drive).
		WithCalendar(calendar).
		Build()
	if err != nil {
		log.Fatalf("Failed to build tool registry: %v", err)
	}
	logger.Info("tools registered", "tools", toolRegistry.Names())

	// Approval gate
	gate := serviceApproval.NewGate(store.approvals, store.tx, serviceApproval.Config{
		DefaultTTL:    cfg.ApprovalTTL,
		MaxTTL:        config.MaxApprovalTTL,
		SweepInterval: cfg.ApprovalSweepInterval,
	}, logger)
	serviceApproval.RegisterDefaultAppliers(gate, store.content, drive)
	go gate.StartSweeper(ctx)
	approvalService := serviceApproval.NewService(gate, serviceAuth.NewOwnerBasedAuthorizer(store.approvals))

	// Orchestration
	executor := tools.NewExecutor(toolRegistry, gate, cfg.MaxToolConcurrency, logger)
	engine := agentloop.NewEngine(executor, agentloop.Config{
		MaxIterations: cfg.MaxToolIterations,
		CallTimeout:   cfg.ProviderCallTimeout,
	}, logger)
	coordinator := fanout.NewCoordinator(providers, engine, fanout.Config{
		ModelDeadline: cfg.ModelDeadline,
		TurnDeadline:  cfg.TurnDeadline,
	}, logger)
	builder := consensus.NewBuilder(providers, consensus.Config{
		Synthesizer: cfg.SynthesizerModel,
		CallTimeout: cfg.ProviderCallTimeout,
	}, logger)

	streamRegistry := mstream.NewRegistry()
	go streamRegistry.StartCleanup(ctx)
	streamCfg := streaming.DefaultConfig()
	streamCfg.Debug = cfg.Debug
	turnStreams := streaming.NewTurnStreams(streamRegistry, streamCfg, logger)

	turnService := orchestrator.NewService(store.conversations, coordinator, builder, turnStreams, orchestrator.Config{
		DefaultModels: cfg.DefaultModels,
		DefaultMode:   llm.ModeConsensus,
		SystemPrompt:  cfg.SystemPrompt,
		HistoryLimit:  cfg.HistoryLimit,
	}, logger)

	// Handlers
	mux := handler.NewRouter(handler.Handlers{
		Health:    handler.NewHealthHandler(store.name),
		Turns:     handler.NewTurnHandler(turnService, turnStreams, nil, logger),
		Approvals: handler.NewApprovalHandler(approvalService, logger),
		Models:    handler.NewModelsHandler(caps, serviceLLM.AvailableProviders(cfg), cfg.DefaultModels, logger),
	})

	// Auth: Supabase JWTs when configured, a fixed user otherwise
	var authed http.Handler
	if cfg.SupabaseJWKSURL != "" {
		jwtVerifier, err := auth.NewJWTVerifier(cfg.SupabaseJWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
		defer jwtVerifier.Close()
		authed = middleware.AuthMiddleware(jwtVerifier, logger)(mux)
	} else {
		if cfg.Environment == "prod" {
			log.Fatalf("SUPABASE_URL is required in prod")
		}
		logger.Warn("SUPABASE_URL not set - all requests run as the dev user", "user_id", cfg.DevUserID)
		authed = middleware.DevAuthMiddleware(cfg.DevUserID)(mux)
	}

	// Middleware chain (outer to inner): CORS -> Recovery -> Auth -> mux
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	}).Handler(middleware.Recovery(logger)(authed))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // turns and SSE streams outlive any fixed write timeout
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("server listening", "address", "http://localhost:"+cfg.Port, "storage", store.name)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	logger.Info("server stopped")
}

// openStorage uses Postgres when SUPABASE_DB_URL is set and in-memory stores otherwise.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.SupabaseDBURL == "" {
		logger.Warn("SUPABASE_DB_URL not set - using in-memory storage, data is lost on restart")
		return &storage{
			name:          "memory",
			conversations: memory.NewConversationStore(),
			approvals:     memory.NewApprovalRepository(),
			content:       memory.NewContentStore(nil),
			tx:            memory.NewTransactionManager(),
			close:         func() {},
		}, nil
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, pool, cfg.TablePrefix); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("database connected", "table_prefix", cfg.TablePrefix)

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	return &storage{
		name:          "postgres",
		conversations: postgresLLM.NewConversationStore(repoConfig),
		approvals:     postgresApproval.NewApprovalRepository(repoConfig),
		content:       postgresContent.NewContentStore(repoConfig),
		tx:            postgres.NewTransactionManager(pool, logger),
		close:         pool.Close,
	}, nil
}
