package ingest

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// languageSample bounds the text handed to the detector.
const languageSample = 4000

// LanguageDetector tags documents with an ISO 639-1 code.
type LanguageDetector struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

// NewLanguageDetector builds the lingua models lazily on first use.
func NewLanguageDetector() *LanguageDetector {
	return &LanguageDetector{}
}

// Detect returns a lowercase code such as "es" or "en", or "" when the text
// is too short or ambiguous.
func (d *LanguageDetector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if r := []rune(text); len(r) > languageSample {
		text = string(r[:languageSample])
	}
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(lingua.English, lingua.Spanish, lingua.Portuguese, lingua.French, lingua.German, lingua.Italian).
			WithLowAccuracyMode().
			Build()
	})
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}
