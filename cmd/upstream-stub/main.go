package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// upstream de teste para o gateway: responde rápido e loga cada acesso.
func main() {
	addr := flag.String("listen", ":8081", "listen address")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newRouter(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().Str("addr", *addr).Msg("upstream stub listening")
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func newRouter(logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	reply := func(w http.ResponseWriter, r *http.Request) {
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("forwarded_for", r.Header.Get("X-Forwarded-For")).
			Msg("request received")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path, "status": "ok"})
	}
	r.Post("/api/login", reply)
	r.Get("/api/*", reply)
	r.Get("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>"))
		logger.Info().Msg("alguém acessou /showTela")
	})
	return r
}
