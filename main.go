package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"videomoments/clips"
	"videomoments/config"
	"videomoments/core"
	"videomoments/ingest"
	"videomoments/search"
	"videomoments/server"
	"videomoments/storage"
	"videomoments/utils"
)

func main() {
	for _, dir := range []string{core.DataRoot(), core.SourceClipsDir(), core.FramesDir(), core.ClipsDir(), core.AudioDir()} {
		if err := utils.EnsureDir(dir); err != nil {
			log.Fatalf("failed to create data dir %s: %v", dir, err)
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	visual, audio := storage.OpenStores(ctx, cfg)
	backend := os.Getenv("STORE")
	if backend == "" {
		backend = "memory"
	}
	log.Printf("Vector store initialized: %s", backend)

	captioner, transcriber := ingest.PickProviders(cfg)
	coordinator := ingest.NewCoordinator(visual, audio, captioner, transcriber, cfg.SampleRateFPS)

	// Keep the index warm: an empty vector index with a populated log is
	// an ordinary recovery path, not an operator problem.
	if err := coordinator.EnsureLoaded(ctx); err != nil {
		log.Printf("Warning: index warm-up failed: %v", err)
	}

	engine := search.NewEngine(visual, audio, cfg)
	cache := clips.NewCache(core.ClipsDir(), ingest.ResolveSource)

	mux := http.NewServeMux()
	srv := server.New(engine, coordinator, cache, cfg)
	srv.Routes(mux)

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}
	log.Printf("Server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}
