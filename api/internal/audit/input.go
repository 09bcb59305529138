package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// InputVideo is one entry of the input configuration. Personas may be given
// inline; otherwise they are looked up in a persona CSV by normalized title.
type InputVideo struct {
	VideoURL string   `json:"video_url"`
	Title    string   `json:"title"`
	Personas []string `json:"personas,omitempty"`
}

// LoadInput reads the input configuration (a JSON array of InputVideo).
func LoadInput(path string) ([]InputVideo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input config: %w", err)
	}
	var in []InputVideo
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("parse input config: %w", err)
	}
	return in, nil
}

// ExpandUnits turns the input configuration into the flat unit list the
// coordinator schedules: one unit per persona per video, repeated numRuns
// times for consistency analysis. Indices are assigned here, once.
func ExpandUnits(in []InputVideo, numRuns int) []Unit {
	if numRuns < 1 {
		numRuns = 1
	}
	var units []Unit
	idx := 0
	for _, v := range in {
		for _, persona := range v.Personas {
			persona = strings.TrimSpace(persona)
			if persona == "" {
				continue
			}
			for run := 1; run <= numRuns; run++ {
				units = append(units, Unit{
					Index:    idx,
					VideoURL: v.VideoURL,
					Title:    v.Title,
					Persona:  persona,
					Run:      run,
				})
				idx++
			}
		}
	}
	return units
}

// NormalizeTitle folds unicode quotes and dashes to ASCII so persona CSV
// titles match config titles regardless of which editor produced them.
func NormalizeTitle(s string) string {
	r := strings.NewReplacer(
		"’", "'", "‘", "'",
		"”", `"`, "“", `"`,
		"–", "-", "—", "-",
	)
	return r.Replace(strings.TrimSpace(s))
}

// LoadPersonasByTitle reads a persona CSV (columns title_en and
// student_persona) and returns the persona descriptions whose title matches.
func LoadPersonasByTitle(path, title string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open persona csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("persona csv header: %w", err)
	}
	titleCol, personaCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "title_en":
			titleCol = i
		case "student_persona":
			personaCol = i
		}
	}
	if titleCol < 0 || personaCol < 0 {
		return nil, fmt.Errorf("persona csv: missing title_en or student_persona column")
	}

	want := NormalizeTitle(title)
	var personas []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("persona csv row: %w", err)
		}
		if titleCol >= len(rec) || personaCol >= len(rec) {
			continue
		}
		if NormalizeTitle(rec[titleCol]) != want {
			continue
		}
		if p := strings.TrimSpace(rec[personaCol]); p != "" {
			personas = append(personas, p)
		}
	}
	return personas, nil
}
