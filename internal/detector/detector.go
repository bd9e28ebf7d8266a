// Package detector identifies the language of model output among the
// languages the pipeline translates into.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// Supported are the languages a Detector distinguishes. Restricting the set
// keeps the models small and the answers stable on short passages.
var Supported = []lingua.Language{
	lingua.English,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Russian,
	lingua.Chinese,
	lingua.Japanese,
	lingua.Korean,
	lingua.Arabic,
	lingua.Hindi,
}

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over Supported. Building is expensive; reuse it.
func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(Supported...).
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectName returns the English name of the detected language ("German").
func (d *Detector) DetectName(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.String(), true
}

// Lookup resolves an English language name or ISO 639-1 code to a supported
// language.
func Lookup(name string) (lingua.Language, bool) {
	name = strings.TrimSpace(name)
	for _, lang := range Supported {
		if strings.EqualFold(lang.String(), name) || strings.EqualFold(lang.IsoCode639_1().String(), name) {
			return lang, true
		}
	}
	return lingua.Unknown, false
}
