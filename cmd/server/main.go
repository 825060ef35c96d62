package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/transitfeeds/mta-arrivals/api/handlers"
	"github.com/transitfeeds/mta-arrivals/pkg/mta"
)

func main() {
	if os.Getenv("MTA_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	if os.Getenv("MTA_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:  "mta-arrivals-server",
		Usage: "HTTP API for NYC subway station lookups and real-time arrivals",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Value: "8080", Usage: "Server port"},
			&cli.StringFlag{Name: "config", Usage: "YAML config file"},
			&cli.StringFlag{Name: "api-key", EnvVars: []string{"MTA_API_KEY"}, Usage: "MTA API key"},
			&cli.StringFlag{Name: "stops-file", Value: "data/stops.txt", Usage: "GTFS stops.txt file"},
			&cli.DurationFlag{Name: "update-interval", Value: 60 * time.Second, Usage: "Feed update interval"},
		},
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func runServer(c *cli.Context) error {
	config, err := buildConfig(c)
	if err != nil {
		return err
	}

	client, err := mta.NewLocal(config)
	if err != nil {
		return err
	}
	defer client.Close()

	// Give the feed manager a moment to populate initial data
	log.Info().Msg("Waiting for initial data...")
	time.Sleep(2 * time.Second)

	r := mux.NewRouter()
	h := handlers.NewHandler(client)
	h.RegisterRoutes(r)

	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)

	port := c.String("port")
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}

// buildConfig loads the YAML config when given, otherwise assembles one from
// flags. Flags override file values either way.
func buildConfig(c *cli.Context) (mta.Config, error) {
	config := mta.DefaultConfig()

	if path := c.String("config"); path != "" {
		loaded, err := mta.LoadConfig(path)
		if err != nil {
			return mta.Config{}, err
		}
		config = loaded
	}

	if c.IsSet("api-key") || config.APIKey == "" {
		config.APIKey = c.String("api-key")
	}
	if c.IsSet("stops-file") {
		config.StopsFile = c.String("stops-file")
	}
	if c.IsSet("update-interval") {
		config.UpdateInterval = c.Duration("update-interval")
	}

	if err := config.Validate(); err != nil {
		return mta.Config{}, err
	}
	return config, nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
