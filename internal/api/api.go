package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/commit"
	"github.com/felipefinhane/poker-ranking/internal/config"
	"github.com/felipefinhane/poker-ranking/internal/db"
	"github.com/felipefinhane/poker-ranking/internal/metrics"
	"github.com/felipefinhane/poker-ranking/internal/wizard"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Store is the data the API reads and writes. *db.DB implements it.
type Store interface {
	commit.MatchWriter
	ListParticipants(ctx context.Context) ([]wizard.Participant, error)
	ListMatches(ctx context.Context, tournamentID string) ([]db.MatchSummary, error)
	GetMatch(ctx context.Context, matchID string) (*db.Match, error)
	Ranking(ctx context.Context, tournamentID string) ([]db.RankingRow, error)
	Ping(ctx context.Context) error
}

type API struct {
	router      *mux.Router
	store       Store
	authz       wizard.Authorizer
	config      *config.Config
	metrics     *metrics.Metrics
	log         *zap.Logger
	oauthConfig *oauth2.Config
	discordAPI  string
	jwtSecret   []byte
	now         func() time.Time
}

type Option func(*API)

// WithDiscordAPI points OAuth and user lookups at another base URL.
func WithDiscordAPI(base string) Option {
	return func(a *API) {
		a.discordAPI = base
		a.oauthConfig.Endpoint = oauth2.Endpoint{
			AuthURL:  base + "/oauth2/authorize",
			TokenURL: base + "/oauth2/token",
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *API) { a.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

func New(cfg *config.Config, store Store, authz wizard.Authorizer, log *zap.Logger, opts ...Option) *API {
	if log == nil {
		log = zap.NewNop()
	}
	api := &API{
		router:     mux.NewRouter(),
		store:      store,
		authz:      authz,
		config:     cfg,
		log:        log.Named("api"),
		discordAPI: "https://discord.com/api",
		jwtSecret:  []byte(cfg.JWTSecret),
		now:        time.Now,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
	}
	for _, opt := range opts {
		opt(api)
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	if a.metrics != nil {
		a.router.Use(a.metrics.Middleware)
		a.router.Handle("/metrics", a.metrics.Handler()).Methods("GET")
	}
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")

	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")

	// Public endpoints
	a.router.HandleFunc("/api/participants", a.handleListParticipants).Methods("GET")
	a.router.HandleFunc("/api/ranking", a.handleRanking).Methods("GET")
	a.router.HandleFunc("/api/matches", a.handleListMatches).Methods("GET")
	a.router.HandleFunc("/api/matches/{id}", a.handleGetMatch).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/matches", a.handleCreateMatch).Methods("POST")
}

func (a *API) Handler() http.Handler {
	origins := []string{"*"}
	if a.config.PublicFrontendURL != "" {
		origins = []string{a.config.PublicFrontendURL}
	}
	// Bearer tokens only, so credentials stay off.
	corsOptions := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (a *API) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("API server listening", zap.String("addr", "http://"+a.config.WebBind))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
