//go:build js && wasm

package main

import (
	"os"

	"github.com/casedash/casedash/internal/app"
	"github.com/casedash/casedash/internal/config"
	"github.com/casedash/casedash/internal/credentials"
	"github.com/casedash/casedash/internal/logger"
	"github.com/syumai/workers"
	"github.com/syumai/workers/cloudflare"
)

// Worker vars copied into the process environment so config.Load can read them.
var workerVars = []string{
	"ENV",
	"LOG_LEVEL",
	"CASEDASH_API_BASE_URL",
	"CASEDASH_API_TIMEOUT",
	"CASEDASH_REFRESH_TIMEOUT",
	"CASEDASH_EXPIRY_BUFFER",
	"CASEDASH_SESSION_SECRET",
	"ADMIN_API_KEY",
}

func main() {
	for _, name := range workerVars {
		if v := cloudflare.Getenv(name); v != "" {
			os.Setenv(name, v)
		}
	}

	cfg := config.MustLoad("")
	log := logger.New(cfg.Env, cfg.LogLevel)

	log.Info().Msg("📦 Using Cloudflare KV session backend")
	kv, err := credentials.NewKVBackend()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Cloudflare KV backend")
	}

	var backend credentials.Backend = kv
	if cfg.Session.Secret != "" {
		if backend, err = credentials.NewSealedBackend(kv, cfg.Session.Secret); err != nil {
			log.Fatal().Err(err).Msg("Failed to seal Cloudflare KV backend")
		}
	}

	a, err := app.New(cfg, log, app.Options{Backend: backend})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create app")
	}
	if err := a.Restore(); err != nil {
		log.Error().Err(err).Msg("❌ Failed to restore session from KV")
	}

	// Workers cannot run the background ticker; refresh stays reactive.
	workers.Serve(a.NewServer())
}
