package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/store"
	"github.com/docsuite/docflow/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Exposes batch processing over HTTP: POST /runs streams progress as NDJSON, GET /documents lists processed documents grouped by contract.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/runs", handleCreateRun(env))
	r.Get("/documents", handleListDocuments(env))

	return r
}

// handleCreateRun starts a run and streams its events as NDJSON until the
// terminal event.
func handleCreateRun(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			FileIDs []string `json:"file_ids"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if len(body.FileIDs) == 0 {
			http.Error(w, `{"error":"file_ids is required"}`, http.StatusBadRequest)
			return
		}

		handle, err := env.Workflow.Process(req.Context(), body.FileIDs)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("X-Run-ID", handle.RunID())
		w.WriteHeader(http.StatusOK)

		flusher, _ := w.(http.Flusher)
		enc := json.NewEncoder(w)
		for ev := range handle.Stream() {
			if err := enc.Encode(streamLine(ev)); err != nil {
				zap.L().Debug("client gone, draining run", zap.String("run_id", handle.RunID()))
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		// The run keeps its own lifecycle; nothing to await here beyond the
		// stream closing.
	}
}

// streamLine shapes one event for the NDJSON stream.
func streamLine(ev workflow.Event) map[string]any {
	line := map[string]any{"kind": string(ev.Kind())}
	switch e := ev.(type) {
	case workflow.StatusEvent:
		line["file_id"] = e.FileID
		line["message"] = e.Message
		line["level"] = string(e.Level)
	case workflow.ProcessingCompleteEvent:
		line["result"] = e.Result
	case workflow.StopEvent:
		line["results"] = e.Results
	}
	return line
}

// handleListDocuments returns all documents, with invoices grouped under
// the contract they matched.
func handleListDocuments(env *appEnv) http.HandlerFunc {
	type docGroup struct {
		Document model.Document   `json:"document"`
		Invoices []model.Document `json:"invoices,omitempty"`
	}
	return func(w http.ResponseWriter, req *http.Request) {
		docs, err := env.Store.ListDocuments(req.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
			return
		}

		toplevel, byContract := store.GroupByContract(docs)
		groups := make([]docGroup, 0, len(toplevel))
		for _, d := range toplevel {
			groups = append(groups, docGroup{Document: d, Invoices: byContract[d.ID]})
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": groups})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
