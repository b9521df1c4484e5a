// stubd runs the in-memory stub backend standalone so the client CLI
// can be exercised without the real platform.
package main

import (
	"log"
	"log/slog"
	"net/http"

	"github.com/caarlos0/env/v11"

	"milestone-client/internal/stub"
)

type config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	JWTSecret string `env:"JWT_SECRET" envDefault:"milestone-dev-secret"`
	Seed      bool   `env:"SEED_ACCOUNTS" envDefault:"true"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	server := stub.NewServer(cfg.JWTSecret, slog.Default())

	if cfg.Seed {
		members := server.Members()
		if err := members.Register("agent@milestone.dev", "agent123", stub.RoleAdmin); err != nil {
			log.Fatalf("seed agent: %v", err)
		}
		if err := members.Register("user@milestone.dev", "user123", stub.RoleUser); err != nil {
			log.Fatalf("seed user: %v", err)
		}
		slog.Info("seeded accounts", "agent", "agent@milestone.dev", "user", "user@milestone.dev")
	}

	slog.Info("stub backend listening", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, server.Handler()); err != nil {
		log.Fatal(err)
	}
}
