package deck

import "sort"

// Slide is one multilingual slide in a presentation deck. Slides are
// immutable once loaded.
type Slide struct {
	ID       string            `json:"id"`
	Title    map[string]string `json:"title"`
	Content  map[string]string `json:"content"`
	Duration int               `json:"duration"` // seconds; 0 means no timer for this slide
}

// Metadata describes a deck that the loader can materialize, without
// actually loading its slides.
type Metadata struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Languages   []string `json:"languages"`
}

// Languages returns the sorted union of languages used across all slides.
func Languages(slides []Slide) []string {
	seen := make(map[string]bool)
	for _, s := range slides {
		for lang := range s.Title {
			seen[lang] = true
		}
		for lang := range s.Content {
			seen[lang] = true
		}
	}

	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// DefaultSlides returns the built-in deck used when no deck source is
// available for a set.
func DefaultSlides() []Slide {
	return []Slide{
		{
			ID: "1",
			Title: map[string]string{
				"en": "Welcome",
				"pl": "Witamy",
				"de": "Willkommen",
			},
			Content: map[string]string{
				"en": "Welcome to our presentation",
				"pl": "Witamy na naszej prezentacji",
				"de": "Willkommen zu unserer Präsentation",
			},
			Duration: 30,
		},
		{
			ID: "2",
			Title: map[string]string{
				"en": "Slide 2",
				"pl": "Slajd 2",
				"de": "Folie 2",
			},
			Content: map[string]string{
				"en": "This is slide number two",
				"pl": "To jest slajd numer dwa",
				"de": "Dies ist Folie Nummer zwei",
			},
			Duration: 45,
		},
	}
}
