package action

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultTargetLanguage is used by TRANSLATE when no language was given.
const DefaultTargetLanguage = "English"

// Params carries the optional, read-only inputs of a run.
type Params struct {
	TargetLanguage string `json:"target_language,omitempty"`
	Title          string `json:"title,omitempty"`
	URL            string `json:"url,omitempty"`
}

// ResolvedTargetLanguage returns the normalized target language, falling back
// to DefaultTargetLanguage.
func (p Params) ResolvedTargetLanguage() string {
	if lang := NormalizeLanguage(p.TargetLanguage); lang != "" {
		return lang
	}
	return DefaultTargetLanguage
}

// NormalizeLanguage trims and title-cases a language name ("spanish" ->
// "Spanish"). Names in non-Latin scripts pass through unchanged.
func NormalizeLanguage(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	// Casers are stateful; build one per call.
	return cases.Title(language.English).String(name)
}

type languagePattern struct {
	name string
	re   *regexp.Regexp
}

// Order matters: the first matching pattern wins.
var languagePatterns = []languagePattern{
	{"Spanish", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:spanish|español)`)},
	{"French", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:french|français)`)},
	{"German", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:german|deutsch)`)},
	{"Italian", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:italian|italiano)`)},
	{"Portuguese", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:portuguese|português)`)},
	{"Russian", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:russian|русский)`)},
	{"Chinese", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:chinese|mandarin|中文)`)},
	{"Japanese", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:japanese|日本語)`)},
	{"Korean", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:korean|한국어)`)},
	{"Arabic", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:arabic|العربية)`)},
	{"Hindi", regexp.MustCompile(`(?i)\b(?:in|to|into)\s+(?:hindi|हिन्दी)`)},
}

// commandRe matches the language command phrase a user typed in front of
// the text, e.g. "Translate this to Spanish:".
var commandRe = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:translate|convert)(?:\s+(?:this|the following|text))?\s+(?:to|in|into)\s+\S+?\s*[:\-]\s*`)

var inlineCommandRe = regexp.MustCompile(`(?i)\b(?:translate|convert|in|to|into)\s+(?:(?:to|in|into)\s+)?(?:spanish|french|german|italian|portuguese|russian|chinese|mandarin|japanese|korean|arabic|hindi|español|français|deutsch|italiano|português|русский|中文|日本語|한국어|العربية|हिन्दी)\s*:?`)

// DetectTargetLanguage looks for a "to <language>" command in free-form
// input. It returns the detected language (DefaultTargetLanguage when none
// is found), the input with the command removed, and whether a command was
// found.
func DetectTargetLanguage(input string) (string, string, bool) {
	for _, p := range languagePatterns {
		if !p.re.MatchString(input) {
			continue
		}
		cleaned := commandRe.ReplaceAllString(input, "")
		cleaned = inlineCommandRe.ReplaceAllString(cleaned, "")
		return p.name, strings.Join(strings.Fields(cleaned), " "), true
	}
	return DefaultTargetLanguage, input, false
}

// SupportedLanguages lists the languages DetectTargetLanguage recognizes.
func SupportedLanguages() []string {
	out := make([]string, 0, len(languagePatterns))
	for _, p := range languagePatterns {
		out = append(out, p.name)
	}
	return out
}
