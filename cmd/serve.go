package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glowstack/ingredient-cli/internal/parser"
)

var servePort int

// newMux builds the webhook routes over an initialized environment.
func newMux(env *appEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		stats, err := env.Store.Stats(r.Context())
		if err != nil {
			zap.L().Error("status query failed", zap.Error(err))
			http.Error(w, `{"error":"status query failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	mux.HandleFunc("POST /webhook/link", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BatchSize int `json:"batch_size"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
		}

		result, err := env.Linker.LinkBatch(r.Context(), req.BatchSize)
		if err != nil {
			zap.L().Error("webhook link batch failed", zap.Error(err))
			http.Error(w, `{"error":"link batch failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})

	mux.HandleFunc("POST /webhook/scan", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProductID string `json:"product_id"`
			Label     string `json:"label"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.ProductID == "" || req.Label == "" {
			http.Error(w, `{"error":"product_id and label are required"}`, http.StatusBadRequest)
			return
		}

		mentions := parser.Parse(req.Label)
		if len(mentions) == 0 {
			http.Error(w, `{"error":"label parsed to zero ingredients"}`, http.StatusUnprocessableEntity)
			return
		}
		names := make([]string, 0, len(mentions))
		for _, m := range mentions {
			names = append(names, m.Name)
		}

		diff, err := env.Detector.Detect(r.Context(), req.ProductID, names)
		if err != nil {
			zap.L().Error("webhook scan failed",
				zap.String("product_id", req.ProductID),
				zap.Error(err),
			)
			http.Error(w, `{"error":"scan failed"}`, http.StatusInternalServerError)
			return
		}

		result := scanResult{
			ProductID: req.ProductID,
			Changed:   diff.Changed,
			Added:     diff.Added,
			Removed:   diff.Removed,
			Reordered: diff.Reordered,
		}
		if diff.Changed {
			change, err := env.Detector.Record(r.Context(), req.ProductID, diff, "webhook")
			if err != nil {
				zap.L().Error("webhook scan record failed",
					zap.String("product_id", req.ProductID),
					zap.Error(err),
				)
				http.Error(w, `{"error":"record failed"}`, http.StatusInternalServerError)
				return
			}
			result.Version = change.Version
			result.Summary = change.ChangeSummary
			result.Impact = change.ImpactAssessment
			result.Alerted = true
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})

	return mux
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newMux(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
