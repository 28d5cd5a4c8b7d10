package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/syauth/syauth-go/internal/authclient"
	"github.com/syauth/syauth-go/internal/config"
	"github.com/syauth/syauth-go/internal/log"
	"github.com/syauth/syauth-go/internal/middleware"
	"github.com/syauth/syauth-go/internal/server"
	"github.com/syauth/syauth-go/internal/storage"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": "v1",
		"server": map[string]any{
			"baseURL": "https://app.yourcompany.com",
			"addr":    ":8080",
		},
		"auth": map[string]any{
			"apiUrl":                "https://auth.yourcompany.com/api/v1",
			"apiKey":                map[string]string{"$env": "SYAUTH_API_KEY"},
			"oauthClientId":         map[string]string{"$env": "SYAUTH_CLIENT_ID"},
			"authorizationEndpoint": "https://auth.yourcompany.com/oauth/authorize/",
			"tokenEndpoint":         "https://auth.yourcompany.com/oauth/token/",
			"redirectUri":           "https://app.yourcompany.com/auth/callback",
			"sessionSecret":         map[string]string{"$env": "SYAUTH_SESSION_SECRET"},
			"storage":               "memory",
		},
		"routes": map[string]any{
			"protected":             []string{"/dashboard"},
			"auth":                  []string{"/auth/login"},
			"loginUrl":              "/auth/login",
			"defaultProtectedRoute": "/dashboard",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func buildStore(ctx context.Context, cfg config.AuthConfig) (storage.Store, func(), error) {
	switch cfg.Storage {
	case config.StorageKindBolt:
		store, err := storage.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case config.StorageKindFirestore:
		store, err := storage.NewFirestoreStore(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return storage.NewMemoryStore(), func() {}, nil
	}
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting syauth-front", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()

	store, closeStore, err := buildStore(ctx, cfg.Auth)
	if err != nil {
		log.LogError("Failed to initialize token storage: %v", err)
		os.Exit(1)
	}
	defer closeStore()

	client, err := authclient.New(authclient.Config{
		APIURL:                cfg.Auth.APIURL,
		APIKey:                string(cfg.Auth.APIKey),
		OAuthClientID:         cfg.Auth.OAuthClientID,
		AuthorizationEndpoint: cfg.Auth.AuthorizationEndpoint,
		TokenEndpoint:         cfg.Auth.TokenEndpoint,
		RedirectURI:           cfg.Auth.RedirectURI,
		Scopes:                cfg.Auth.Scopes,
		SessionSecret:         []byte(cfg.Auth.SessionSecret),
		SessionTTL:            cfg.Auth.SessionTTL,
		UseRemotePKCE:         cfg.Auth.UseRemotePKCE,
		DefaultRedirectTo:     cfg.Auth.DefaultRedirectTo,
		Store:                 store,
	})
	if err != nil {
		log.LogError("Failed to create auth client: %v", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	if cfg.Routes != nil {
		router.Use(middleware.WithAuth(middleware.Options{
			ProtectedRoutes:       cfg.Routes.Protected,
			AuthRoutes:            cfg.Routes.Auth,
			LoginURL:              cfg.Routes.LoginURL,
			DefaultProtectedRoute: cfg.Routes.DefaultProtectedRoute,
		}))
	}

	router.Mount("/auth", server.New(client).Routes())

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logf("Listening on %s", cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError("Server failed: %v", err)
			os.Exit(1)
		}
	case sig := <-stop:
		log.Logf("Received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.LogError("Shutdown failed: %v", err)
			os.Exit(1)
		}
	}
}
