package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"video-auditor/api/internal/audit"
	"video-auditor/api/internal/config"
	"video-auditor/api/internal/llm/gemini"
	"video-auditor/api/internal/notify"
	"video-auditor/api/internal/pipeline"
	"video-auditor/api/internal/report"
	"video-auditor/api/internal/store"
	"video-auditor/api/internal/video"
)

func main() {
	inputPath := flag.String("input", "videos.json", "input config: JSON array of {video_url, title, personas}")
	personaCSV := flag.String("personas", "", "optional persona CSV (title_en, student_persona) for videos without inline personas")
	outDir := flag.String("out", "", "output directory (overrides OUTPUT_DIR)")
	keepMedia := flag.Bool("keep-media", false, "keep downloaded videos after the run")
	flag.Parse()

	cfg := config.Load()
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}

	in, err := audit.LoadInput(*inputPath)
	if err != nil {
		log.Fatal(err)
	}
	fillPersonas(in, *personaCSV)

	units := audit.ExpandUnits(in, cfg.NumRuns)
	if len(units) == 0 {
		log.Fatal("input config produced no evaluation units")
	}
	log.Printf("expanded %d units from %d videos (runs=%d)", len(units), len(in), cfg.NumRuns)

	ctx := context.Background()
	engine, err := gemini.New(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()
	engine.MediaReadyTimeout = cfg.MediaReadyTimeout

	resolver := video.NewResolver(cfg.DownloadDir)
	results, paths := prepareMedia(ctx, resolver, units)

	coord := pipeline.NewCoordinator(&pipeline.Pipeline{
		LLM:             engine,
		AnalystModel:    cfg.AnalystModel,
		JudgeModel:      cfg.JudgeModel,
		SubjectiveModel: cfg.SubjectiveModel,
	}, int64(cfg.MaxConcurrent))

	// Only units with local media go through the pipeline; download failures
	// already occupy their result slots.
	var runnable []audit.Unit
	var slots []int
	for i, u := range units {
		if results[i] == nil {
			runnable = append(runnable, u)
			slots = append(slots, i)
		}
	}
	for j, res := range coord.RunAll(ctx, runnable) {
		results[slots[j]] = res
	}

	writeReports(cfg, results)

	if !*keepMedia {
		resolver.Cleanup(paths)
	}

	var failed int
	for _, r := range results {
		if r == nil || !r.Success {
			failed++
		}
	}
	log.Printf("run finished: %d ok / %d failed", len(results)-failed, failed)
	if failed == len(results) {
		os.Exit(1)
	}
}

// fillPersonas resolves personas from the CSV for videos that carry none
// inline. A video left without personas is dropped with a warning.
func fillPersonas(in []audit.InputVideo, csvPath string) {
	for i := range in {
		in[i].Title = audit.NormalizeTitle(in[i].Title)
		if len(in[i].Personas) > 0 || csvPath == "" {
			continue
		}
		personas, err := audit.LoadPersonasByTitle(csvPath, in[i].Title)
		if err != nil {
			log.Fatalf("personas for %q: %v", in[i].Title, err)
		}
		if len(personas) == 0 {
			log.Printf("no personas found for %q, skipping video", in[i].Title)
			continue
		}
		in[i].Personas = personas
	}
}

// prepareMedia downloads each distinct URL once and stamps every unit with
// its local path. Units whose download failed get an error result up front
// so the pipeline never sees them.
func prepareMedia(ctx context.Context, resolver *video.Resolver, units []audit.Unit) ([]*audit.Result, []string) {
	type outcome struct {
		id, path string
		err      error
	}
	urls := map[string]bool{}
	for _, u := range units {
		urls[u.VideoURL] = true
	}

	var mu sync.Mutex
	outcomes := make(map[string]outcome, len(urls))
	var wg sync.WaitGroup
	for url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			id, path, err := resolver.Resolve(ctx, url)
			mu.Lock()
			outcomes[url] = outcome{id: id, path: path, err: err}
			mu.Unlock()
		}(url)
	}
	wg.Wait()

	results := make([]*audit.Result, len(units))
	var paths []string
	for i := range units {
		o := outcomes[units[i].VideoURL]
		if o.err != nil {
			results[i] = audit.Failed(units[i], o.err)
			continue
		}
		units[i].VideoID = o.id
		units[i].VideoPath = o.path
		paths = append(paths, o.path)
	}
	return results, paths
}

func writeReports(cfg *config.Config, results []*audit.Result) {
	w := report.NewWriter(cfg.OutputDir)

	jsonFiles := make(map[int]string, len(results))
	for _, res := range results {
		if res == nil {
			continue
		}
		name, err := w.WriteUnit(res)
		if err != nil {
			log.Printf("write unit %d: %v", res.Unit.Index, err)
			continue
		}
		jsonFiles[res.Unit.Index] = name
	}

	if path, err := w.WriteSummary(results, jsonFiles); err != nil {
		log.Printf("write summary: %v", err)
	} else {
		log.Printf("summary: %s", path)
	}

	if c := report.BuildConsistency(results); c != nil {
		if path, err := w.WriteConsistency(c); err != nil {
			log.Printf("write consistency: %v", err)
		} else {
			log.Printf("consistency (%s): %s", c.Verdict, path)
		}
	}

	persistResults(cfg, w.Stamp, results)

	if t := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID); t != nil {
		t.RunSummary(w.Stamp, results)
	}
}

func persistResults(cfg *config.Config, stamp string, results []*audit.Result) {
	if cfg.DatabaseURL == "" {
		return
	}
	ctx := context.Background()
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("postgres: %v (results kept on disk only)", err)
		return
	}
	defer db.Close()

	repo := store.NewResultRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Printf("postgres: %v", err)
		return
	}
	if err := repo.SaveAll(ctx, stamp, results); err != nil {
		log.Printf("postgres: %v", err)
		return
	}
	log.Printf("persisted %d results under run %s", len(results), stamp)
}
