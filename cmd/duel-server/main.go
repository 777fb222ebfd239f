package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"

	appcfg "github.com/mlacan/sudoku-duel/internal/config"
	"github.com/mlacan/sudoku-duel/internal/duel"
	"github.com/mlacan/sudoku-duel/internal/msgcat"
	"github.com/mlacan/sudoku-duel/internal/obslog"
	"github.com/mlacan/sudoku-duel/internal/sudoku"
	"github.com/mlacan/sudoku-duel/internal/user"
	"github.com/mlacan/sudoku-duel/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading environment directly")
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	var (
		store duel.Store
		users user.Directory
	)
	if cfg.DatabaseURL != "" {
		repo, err := duel.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Fatal("duel repository init error", zap.Error(err))
		}
		defer repo.Close()
		store = repo
		users = user.NewRepository(repo.DB())
	} else {
		obslog.L().Warn("DATABASE_URL not set, running on in-memory store")
		store = duel.NewMemStore()
		users = user.NewMemDirectory()
	}

	replies, err := msgcat.New(cfg.ReplyTemplateDir)
	if err != nil {
		obslog.L().Fatal("reply catalog init error", zap.Error(err))
	}

	coord := duel.NewCoordinator(store, users, sudoku.NewGenerator(), replies, duel.Options{
		BotFallbackWait: cfg.BotFallbackWait,
		BotReplyDelay:   cfg.BotReplyDelay,
		Bot:             duel.BotConfig{TickInterval: cfg.BotTickInterval},
	})

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}).Methods("GET")
	r.HandleFunc("/duels/{id}", func(w http.ResponseWriter, req *http.Request) {
		serveDuel(store, w, req)
	}).Methods("GET")
	r.Handle("/ws", ws.NewServer(coord, cfg.AllowedOrigins))

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("server_listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obslog.L().Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	obslog.L().Info("server_stopped")
}

// serveDuel exposes a read-only match lookup; the solution is withheld.
func serveDuel(store duel.Store, w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	w.Header().Set("Content-Type", "application/json")

	m, err := store.Get(req.Context(), id)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "server error"})
		return
	}
	if m == nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "duel not found"})
		return
	}
	m.Solution = sudoku.Grid{}
	_ = json.NewEncoder(w).Encode(m)
}
