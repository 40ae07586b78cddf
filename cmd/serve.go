package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/entity-extractor/internal/model"
)

const maxRequestBytes = 10 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtraction(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		go env.Checker.Run(ctx)

		return startServer(ctx, buildRouter(env), resolvePort(servePort, cfg.Server.Port))
	},
}

type extractRequest struct {
	Chunks []string `json:"chunks"`
}

type extractResponse struct {
	RequestID string              `json:"request_id"`
	Results   []model.ChunkResult `json:"results"`
}

// buildRouter mounts the HTTP API. env may be nil, in which case only
// /health is served meaningfully.
func buildRouter(env *extractEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if env == nil {
					writeError(w, http.StatusServiceUnavailable, "extraction is not configured")
					return
				}
				next.ServeHTTP(w, req)
			})
		})
		r.Post("/extract", handleExtract(env))
		r.Get("/stats", handleStats(env))
		r.Delete("/cache", handleClearCache(env))
	})

	return r
}

func handleExtract(env *extractEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Chunks) == 0 {
			writeError(w, http.StatusBadRequest, "chunks is required")
			return
		}

		chunks := make([]model.TextChunk, len(req.Chunks))
		for i, text := range req.Chunks {
			chunks[i] = model.TextChunk{Text: text}
		}

		requestID := uuid.NewString()
		results, err := env.Coordinator.Run(r.Context(), chunks)
		if err != nil && results == nil {
			zap.L().Error("extract request failed",
				zap.String("request_id", requestID),
				zap.Int("chunks", len(chunks)),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if err != nil {
			zap.L().Warn("extract request cancelled",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}

		writeJSON(w, http.StatusOK, extractResponse{RequestID: requestID, Results: results})
	}
}

func handleStats(env *extractEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := env.Cache.Len(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, eris.Wrap(err, "cache stats").Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"cache_entries": entries,
			"summary":       env.Recorder.Snapshot(),
		})
	}
}

func handleClearCache(env *extractEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := env.Cache.Len(r.Context())
		if err == nil {
			err = env.Cache.Clear(r.Context())
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, eris.Wrap(err, "cache clear").Error())
			return
		}
		zap.L().Info("cache cleared via api", zap.Int("removed", n))
		writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "removed": n})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolvePort prefers the flag value when set.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx ends, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server listen")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
