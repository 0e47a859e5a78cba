package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"skiff/internal/core"
	"skiff/internal/feed/merge"
	"skiff/internal/feed/migrations"
	"skiff/internal/feed/normalize"
	"skiff/internal/feed/reader"
	"skiff/internal/feed/services"
	"skiff/internal/feed/store"
	"skiff/internal/server/handlers"
	"skiff/internal/sync/cloud"
	"skiff/internal/sync/fever"
)

// Server wires the stores, sync engines and HTTP API together
type Server struct {
	config      *core.Config
	logger      *core.Logger
	db          *core.Database
	refresh     *services.RefreshService
	cloudEngine *cloud.Engine
	feverEngine *fever.Engine
	coordinator *cloud.Coordinator
	server      *http.Server
}

// New builds a server from configuration: opens the database, runs
// migrations and constructs the service graph. Sync engines are only
// created when their config section enables them.
func New(config *core.Config, logger *core.Logger) (*Server, error) {
	db, err := core.OpenDatabase(config.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	migrator := core.NewMigrationService(db, logger)
	if err := migrator.Migrate(context.Background(), migrations.All()); err != nil {
		db.Close()
		return nil, err
	}

	feeds := store.NewFeedStore(db, logger)
	folders := store.NewFolderStore(db, logger)
	articles := store.NewArticleStore(db, logger)
	rules := store.NewRuleStore(db, logger)
	meta := store.NewMetaStore(db)

	merger := merge.NewEngine(db, articles, rules, logger)
	normalizer := normalize.NewNormalizer(logger)
	fetcher := services.NewFetcher(logger, &config.Fetcher)
	refresh := services.NewRefreshService(fetcher, normalizer, merger, feeds, logger, &config.Fetcher)
	extractor := reader.NewExtractor(articles, logger, &config.Fetcher)

	coordinator := cloud.NewCoordinator()
	queue := cloud.NewQueueStore(db, logger)

	var cloudEngine *cloud.Engine
	if config.CloudSync.Enabled {
		backend := cloud.NewHTTPBackend(&config.CloudSync, logger)
		cloudEngine = cloud.NewEngine(&config.CloudSync, backend, coordinator, queue, feeds, folders, articles, meta, logger)
	}

	var feverEngine *fever.Engine
	if config.Fever.Enabled {
		client := fever.NewClient(&config.Fever, logger)
		feverEngine = fever.NewEngine(client, feeds, folders, articles, merger, meta, logger)
	}

	srv := &Server{
		config:      config,
		logger:      logger.ForComponent("server"),
		db:          db,
		refresh:     refresh,
		cloudEngine: cloudEngine,
		feverEngine: feverEngine,
		coordinator: coordinator,
	}
	srv.setupRoutes(feeds, folders, articles, rules, extractor, queue)

	return srv, nil
}

func (s *Server) setupRoutes(
	feeds *store.FeedStore,
	folders *store.FolderStore,
	articles *store.ArticleStore,
	rules *store.RuleStore,
	extractor *reader.Extractor,
	queue *cloud.QueueStore,
) {
	feedHandler := handlers.NewFeedHandler(s.logger, feeds, s.refresh, s.cloudEngine)
	folderHandler := handlers.NewFolderHandler(s.logger, folders, s.cloudEngine)
	articleHandler := handlers.NewArticleHandler(s.logger, articles, extractor, s.cloudEngine, s.feverEngine)
	ruleHandler := handlers.NewRuleHandler(s.logger, rules)
	syncHandler := handlers.NewSyncHandler(s.logger, s.coordinator, queue, s.cloudEngine, s.feverEngine)

	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Logger)

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	})

	mux.Route("/api/v1", func(r chi.Router) {
		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", feedHandler.ListFeeds)
			r.Post("/", feedHandler.Subscribe)
			r.Post("/refresh", feedHandler.RefreshAll)
			r.Get("/{id}", feedHandler.GetFeed)
			r.Patch("/{id}", feedHandler.UpdateFeed)
			r.Delete("/{id}", feedHandler.DeleteFeed)
			r.Post("/{id}/refresh", feedHandler.RefreshFeed)
		})

		r.Route("/folders", func(r chi.Router) {
			r.Get("/", folderHandler.ListFolders)
			r.Post("/", folderHandler.CreateFolder)
			r.Patch("/{id}", folderHandler.RenameFolder)
			r.Delete("/{id}", folderHandler.DeleteFolder)
		})

		r.Route("/articles", func(r chi.Router) {
			r.Get("/", articleHandler.ListArticles)
			r.Get("/{id}", articleHandler.GetArticle)
			r.Post("/{id}/read", articleHandler.SetRead)
			r.Post("/{id}/star", articleHandler.SetStarred)
			r.Post("/{id}/playback", articleHandler.AdvancePlayback)
			r.Post("/{id}/reader", articleHandler.PrefetchReader)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", ruleHandler.ListRules)
			r.Post("/", ruleHandler.CreateRule)
			r.Patch("/{id}", ruleHandler.SetRuleEnabled)
			r.Delete("/{id}", ruleHandler.DeleteRule)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", syncHandler.Status)
			r.Post("/full", syncHandler.TriggerFullSync)
			r.Post("/incremental", syncHandler.TriggerIncrementalSync)
			r.Post("/fever", syncHandler.TriggerFeverSync)
		})
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler: mux,
	}
}

// Start launches the background loops and serves HTTP until shutdown
func (s *Server) Start(ctx context.Context) error {
	s.refresh.Start(ctx)

	if s.cloudEngine != nil {
		s.cloudEngine.Start(ctx)
	}

	s.logger.Info("Starting server", "host", s.config.Server.Host, "port", s.config.Server.Port)
	return s.server.ListenAndServe()
}

// Shutdown stops the background loops, the HTTP listener and the database
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	s.refresh.Stop()
	if s.cloudEngine != nil {
		s.cloudEngine.Stop()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
