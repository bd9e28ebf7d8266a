// Package validator checks that TRANSLATE output is in the requested language.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/studyspark/internal/detector"
)

// Texts shorter than this many runes are too short to detect reliably and
// always pass.
const minValidationLength = 20

var ErrLanguageMismatch = errors.New("output language mismatch")

// Validator wraps a shared detector; build one and reuse it.
type Validator struct {
	det *detector.Detector
}

func New() *Validator {
	return &Validator{det: detector.New()}
}

// Check reports whether text is written in targetLanguage (an English name or
// ISO code). Unknown targets, short texts, and undetectable texts pass.
func (v *Validator) Check(text, targetLanguage string) error {
	want, ok := detector.Lookup(targetLanguage)
	if !ok {
		return nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: output is empty", ErrLanguageMismatch)
	}
	if len([]rune(text)) < minValidationLength {
		return nil
	}

	got, ok := v.det.Detect(text)
	if !ok {
		return nil
	}
	if got != want {
		return fmt.Errorf("%w: expected %s but detected %s", ErrLanguageMismatch, want, got)
	}
	return nil
}
