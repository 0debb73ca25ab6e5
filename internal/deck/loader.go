package deck

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Loader materializes slide decks for sets.
type Loader interface {
	// Load returns the slides for the given set, or an error if the
	// deck source is missing or malformed.
	Load(setID string) ([]Slide, error)

	// List enumerates the decks this loader can materialize. It peeks
	// metadata only and never caches anything.
	List() ([]Metadata, error)
}

// CSVLoader loads decks from per-set CSV files in a directory. Each set
// is backed by <dir>/<setID>.csv with the columns
// slideId,language,title,content,duration. Rows sharing a slideId are
// grouped into one multilingual slide; row order determines slide order.
type CSVLoader struct {
	dir string
}

// NewCSVLoader creates a loader reading decks from dir.
func NewCSVLoader(dir string) *CSVLoader {
	return &CSVLoader{dir: dir}
}

func (l *CSVLoader) Load(setID string) ([]Slide, error) {
	path := filepath.Join(l.dir, setID+".csv")
	slides, err := parseDeckFile(path)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("set_id", setID).
		Str("path", path).
		Int("slides", len(slides)).
		Msg("deck loaded")

	return slides, nil
}

func (l *CSVLoader) List() ([]Metadata, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read decks directory: %w", err)
	}

	var metas []Metadata
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}

		id := strings.TrimSuffix(name, ".csv")
		slides, err := parseDeckFile(filepath.Join(l.dir, name))
		if err != nil {
			log.Warn().Err(err).Str("set_id", id).Msg("skipping unreadable deck")
			continue
		}

		metas = append(metas, Metadata{
			ID:          id,
			DisplayName: displayName(id),
			Languages:   Languages(slides),
		})
	}

	return metas, nil
}

func parseDeckFile(path string) ([]Slide, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open deck file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse deck file: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("deck file %s has no data rows", path)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"slideId", "language", "title", "content", "duration"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("deck file %s is missing column %q", path, required)
		}
	}

	field := func(row []string, name string) string {
		i := col[name]
		if i >= len(row) {
			return ""
		}
		return row[i]
	}

	var order []string
	byID := make(map[string]*Slide)
	for _, row := range records[1:] {
		id := field(row, "slideId")
		if id == "" {
			id = "1"
		}

		slide, ok := byID[id]
		if !ok {
			duration, _ := strconv.Atoi(field(row, "duration"))
			if duration < 0 {
				duration = 0
			}
			slide = &Slide{
				ID:       id,
				Title:    make(map[string]string),
				Content:  make(map[string]string),
				Duration: duration,
			}
			byID[id] = slide
			order = append(order, id)
		}

		if lang := field(row, "language"); lang != "" {
			slide.Title[lang] = field(row, "title")
			slide.Content[lang] = field(row, "content")
		}
	}

	slides := make([]Slide, 0, len(order))
	for _, id := range order {
		slides = append(slides, *byID[id])
	}
	return slides, nil
}

// displayName derives a human readable name from a set id, e.g.
// "main-hall" becomes "Main Hall".
func displayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
