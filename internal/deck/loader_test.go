package deck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDeck(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadGroupsRowsIntoMultilingualSlides(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "main.csv", `slideId,language,title,content,duration
1,en,Welcome,Hello everyone,30
1,pl,Witamy,Witajcie,30
2,en,Closing,Goodbye,45
`)

	slides, err := NewCSVLoader(dir).Load("main")
	require.NoError(t, err)
	require.Len(t, slides, 2)

	require.Equal(t, "1", slides[0].ID)
	require.Equal(t, "Welcome", slides[0].Title["en"])
	require.Equal(t, "Witamy", slides[0].Title["pl"])
	require.Equal(t, "Witajcie", slides[0].Content["pl"])
	require.Equal(t, 30, slides[0].Duration)

	require.Equal(t, "2", slides[1].ID)
	require.Equal(t, 45, slides[1].Duration)
}

func TestLoadPreservesRowOrder(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "main.csv", `slideId,language,title,content,duration
b,en,Second file row,x,10
a,en,First by id but later,y,20
`)

	slides, err := NewCSVLoader(dir).Load("main")
	require.NoError(t, err)
	require.Equal(t, "b", slides[0].ID)
	require.Equal(t, "a", slides[1].ID)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := NewCSVLoader(t.TempDir()).Load("absent")
	require.Error(t, err)
}

func TestLoadRejectsMissingColumns(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "bad.csv", `slideId,title
1,Welcome
`)

	_, err := NewCSVLoader(dir).Load("bad")
	require.Error(t, err)
}

func TestLoadTreatsInvalidDurationAsUntimed(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "main.csv", `slideId,language,title,content,duration
1,en,Welcome,Hello,nonsense
2,en,Negative,Hello,-10
`)

	slides, err := NewCSVLoader(dir).Load("main")
	require.NoError(t, err)
	require.Equal(t, 0, slides[0].Duration)
	require.Equal(t, 0, slides[1].Duration)
}

func TestListPeeksMetadataForEveryDeck(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "main-hall.csv", `slideId,language,title,content,duration
1,en,Welcome,Hello,30
1,de,Willkommen,Hallo,30
`)
	writeDeck(t, dir, "workshop.csv", `slideId,language,title,content,duration
1,en,Intro,Hi,0
`)
	writeDeck(t, dir, "notes.txt", "not a deck")

	metas, err := NewCSVLoader(dir).List()
	require.NoError(t, err)
	require.Len(t, metas, 2)

	byID := make(map[string]Metadata)
	for _, m := range metas {
		byID[m.ID] = m
	}
	require.Equal(t, "Main Hall", byID["main-hall"].DisplayName)
	require.Equal(t, []string{"de", "en"}, byID["main-hall"].Languages)
	require.Equal(t, []string{"en"}, byID["workshop"].Languages)
}

func TestLanguagesSortedUnion(t *testing.T) {
	slides := []Slide{
		{Title: map[string]string{"pl": "x"}, Content: map[string]string{"pl": "x"}},
		{Title: map[string]string{"en": "y", "de": "z"}, Content: map[string]string{"en": "y"}},
	}
	require.Equal(t, []string{"de", "en", "pl"}, Languages(slides))
}

func TestDefaultSlidesCarryTimerDurations(t *testing.T) {
	slides := DefaultSlides()
	require.Len(t, slides, 2)
	require.Equal(t, 30, slides[0].Duration)
	require.Equal(t, 45, slides[1].Duration)
	require.Equal(t, []string{"de", "en", "pl"}, Languages(slides))
}
