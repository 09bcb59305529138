package main

import (
	"context"
	"log"
	"os"
	"strings"

	"video-auditor/api/internal/config"
	"video-auditor/api/internal/httpserver"
	"video-auditor/api/internal/llm/gemini"
	"video-auditor/api/internal/pipeline"
	"video-auditor/api/internal/video"
)

func main() {
	cfg := config.Load()

	// Prefer platform PORT env var; fallback to cfg.Port; then to 8000
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		cfg.Port = p
	} else if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "8000"
	}

	ctx := context.Background()
	engine, err := gemini.New(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()
	engine.MediaReadyTimeout = cfg.MediaReadyTimeout

	coord := pipeline.NewCoordinator(&pipeline.Pipeline{
		LLM:             engine,
		AnalystModel:    cfg.AnalystModel,
		JudgeModel:      cfg.JudgeModel,
		SubjectiveModel: cfg.SubjectiveModel,
	}, int64(cfg.MaxConcurrent))

	srv := httpserver.New(coord, video.NewResolver(cfg.DownloadDir))

	addr := "0.0.0.0:" + cfg.Port
	if err := srv.ListenAndServe(addr); err != nil {
		log.Fatal(err)
	}
}
