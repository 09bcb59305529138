// Package report assembles per-unit records and tabular summaries. Unit
// files are written whole-then-renamed so a crash mid-run never leaves a
// truncated record behind.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"video-auditor/api/internal/audit"
)

type Writer struct {
	Dir   string
	Stamp string // shared filename prefix for one run
}

func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, Stamp: time.Now().Format("20060102_150405")}
}

func (w *Writer) ensureDir() error {
	return os.MkdirAll(w.Dir, 0o755)
}

// WriteUnit writes one complete JSON record for a unit. The filename is
// derived from the dispatch index, never from completion order.
func (w *Writer) WriteUnit(res *audit.Result) (string, error) {
	if err := w.ensureDir(); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_unit_%03d.json", w.Stamp, res.Unit.Index)
	if err := atomicWriteJSON(filepath.Join(w.Dir, name), res); err != nil {
		return "", err
	}
	return name, nil
}

func atomicWriteJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".audit-tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(b); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

var summaryHeader = []string{
	"timestamp", "index", "video_url", "title", "persona", "run",
	"accuracy", "logic", "adaptability", "engagement", "weighted_total",
	"success", "error", "json_file",
}

// WriteSummary writes one CSV row per unit, failures included so they stay
// auditable post-hoc. Zero units still produces a valid header-only file.
func (w *Writer) WriteSummary(results []*audit.Result, jsonFiles map[int]string) (string, error) {
	if err := w.ensureDir(); err != nil {
		return "", err
	}
	path := filepath.Join(w.Dir, w.Stamp+"_summary.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create summary: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(summaryHeader); err != nil {
		return "", err
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		row := []string{
			w.Stamp,
			strconv.Itoa(res.Unit.Index),
			res.Unit.VideoURL,
			res.Unit.Title,
			res.Unit.Persona,
			strconv.Itoa(res.Unit.Run),
			formatScore(res.Accuracy.Score, res.Success),
			formatScore(res.Logic.Score, res.Success),
			formatScore(res.Adaptability.Score, res.Success),
			formatScore(res.Engagement.Score, res.Success),
			formatScore(res.WeightedTotal(), res.Success),
			strconv.FormatBool(res.Success),
			res.Err,
			jsonFiles[res.Unit.Index],
		}
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	return path, nil
}

func formatScore(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Stats summarizes one objective dimension across repeated runs.
type Stats struct {
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"std_dev"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Values []float64 `json:"values"`
}

// Consistency reports how stable the objective scores were across units.
type Consistency struct {
	NumEvaluations int    `json:"num_evaluations"`
	Accuracy       Stats  `json:"accuracy"`
	Logic          Stats  `json:"logic"`
	Verdict        string `json:"consistency_verdict"` // HIGH | MODERATE | LOW
}

// BuildConsistency computes objective-score spread over successful units.
func BuildConsistency(results []*audit.Result) *Consistency {
	var acc, logic []float64
	for _, r := range results {
		if r == nil || !r.Success {
			continue
		}
		acc = append(acc, r.Accuracy.Score)
		logic = append(logic, r.Logic.Score)
	}
	if len(acc) == 0 {
		return nil
	}
	c := &Consistency{
		NumEvaluations: len(acc),
		Accuracy:       buildStats(acc),
		Logic:          buildStats(logic),
	}
	switch {
	case c.Accuracy.StdDev < 0.5 && c.Logic.StdDev < 0.5:
		c.Verdict = "HIGH"
	case c.Accuracy.StdDev < 1.0 && c.Logic.StdDev < 1.0:
		c.Verdict = "MODERATE"
	default:
		c.Verdict = "LOW"
	}
	return c
}

// WriteConsistency stores the consistency report next to the summary.
func (w *Writer) WriteConsistency(c *Consistency) (string, error) {
	if c == nil {
		return "", nil
	}
	if err := w.ensureDir(); err != nil {
		return "", err
	}
	path := filepath.Join(w.Dir, w.Stamp+"_consistency.json")
	return path, atomicWriteJSON(path, c)
}

func buildStats(vals []float64) Stats {
	s := Stats{Values: vals, Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range vals {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(vals))
	if len(vals) > 1 {
		var sq float64
		for _, v := range vals {
			d := v - s.Mean
			sq += d * d
		}
		s.StdDev = math.Sqrt(sq / float64(len(vals)-1))
	}
	return s
}
