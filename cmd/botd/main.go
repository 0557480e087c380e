package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jmcpheron/jcn-bot/internal/analysis/relevance"
	"github.com/jmcpheron/jcn-bot/internal/config"
	"github.com/jmcpheron/jcn-bot/internal/convlog"
	"github.com/jmcpheron/jcn-bot/internal/handler"
	"github.com/jmcpheron/jcn-bot/internal/handler/chatapi"
	"github.com/jmcpheron/jcn-bot/internal/service/ai"
	"github.com/jmcpheron/jcn-bot/internal/service/conversation"
	"github.com/jmcpheron/jcn-bot/internal/service/engage"
	"github.com/jmcpheron/jcn-bot/internal/service/function"
	"github.com/jmcpheron/jcn-bot/internal/service/turn"
	"github.com/jmcpheron/jcn-bot/internal/wallet"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	contexts := &turn.ContextSet{
		Persona:    turn.NewFileSource(cfg.Context.SystemPromptFile),
		Background: turn.NewFileSource(cfg.Context.BackgroundFile),
		General:    turn.NewFileSource(cfg.Context.ContextFile),
	}

	// The engagement gate scores group messages against the general context
	// document, captured once at startup.
	scorer := relevanceScorer(contexts)
	gate := engage.NewGate(scorer, engage.Config{
		RelevanceThreshold:  cfg.Engage.RelevanceThreshold,
		ContinuityThreshold: cfg.Engage.ContinuityThreshold,
		Window:              cfg.Engage.Window,
		Capacity:            cfg.Engage.Capacity,
		ContinuityDepth:     cfg.Engage.ContinuityDepth,
	})

	// Initialize the wallet and its chat functions
	var walletClient *wallet.Client
	if cfg.Wallet.Enabled() {
		walletClient, err = wallet.NewClient(ctx, wallet.Config{
			RPCURL:          cfg.Wallet.RPCURL,
			ContractAddress: cfg.Wallet.ContractAddress,
			PrivateKey:      cfg.Wallet.PrivateKey,
		})
		if err != nil {
			log.Fatalf("failed to initialize wallet: %v", err)
		}
		defer walletClient.Close()
		log.Printf("wallet initialized, address %s", walletClient.Address())
	} else {
		log.Println("BOT_PRIVATE_KEY not configured, payment functions disabled")
	}

	var registrations []function.Registration
	if walletClient != nil {
		registrations = function.Builtins(walletClient)
	} else {
		registrations = function.Builtins(nil)
	}
	registry, err := function.NewRegistry(registrations...)
	if err != nil {
		log.Fatalf("failed to build function registry: %v", err)
	}

	// Initialize the conversation log
	var logger *convlog.Logger
	if cfg.Log.Dir != "" {
		logger, err = convlog.NewLogger(cfg.Log.Dir)
		if err != nil {
			log.Printf("warning: failed to initialize conversation log: %v", err)
			logger = nil
		}
	}

	// Initialize the AI service and the turn orchestrator
	var runner chatapi.TurnRunner
	var logReader chatapi.LogReader
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, registry.Specs())
		if err != nil {
			log.Fatalf("failed to initialize AI service: %v", err)
		}

		opts := []turn.Option{turn.WithResponseRecorder(gate)}
		if logger != nil {
			opts = append(opts, turn.WithLogger(logger))
			logReader = logger
		}
		runner = turn.NewOrchestrator(aiService, conversation.NewStore(), registry, contexts, opts...)
		log.Println("AI service initialized successfully")
	} else {
		log.Println("Ark credentials not configured, chat endpoints will answer 503")
	}

	router := handler.NewRouter(runner, gate, logReader)

	startServer(ctx, cfg.Server, router)
}

func relevanceScorer(contexts *turn.ContextSet) *relevance.Scorer {
	return relevance.NewScorer(contexts.General.Read())
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("jcn-bot listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
