// Package prompt renders the instructions sent to the completion service for
// chunk, merge, and refine calls.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/placeholder"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// MergeSeparator is placed between chunk results in a merge prompt.
const MergeSeparator = "\n\n---\n\n"

const noDuplicatesRule = "Do not repeat any point, sentence, or line. Never output duplicate content."

// File is the YAML shape of a prompt set. Keys of Chunk and Merge are action
// names in any case.
type File struct {
	Chunk  map[string]string `yaml:"chunk"`
	Merge  map[string]string `yaml:"merge"`
	Refine string            `yaml:"refine"`
}

// Builder renders prompts from parsed templates. It is safe for concurrent
// use.
type Builder struct {
	chunk  map[action.Action]*template.Template
	merge  map[action.Action]*template.Template
	refine *template.Template
}

// Data is the template context.
type Data struct {
	Action         action.Action
	Title          string
	URL            string
	TargetLanguage string
	Part           int
	Total          int
}

// ChunkInput describes one chunk call. Index is 0-based.
type ChunkInput struct {
	Action    action.Action
	Params    action.Params
	Text      string
	Index     int
	Total     int
	Previous  string
	Protected bool
}

// Default returns the built-in prompt set.
func Default() *Builder {
	b, err := parse(nil)
	if err != nil {
		panic(fmt.Sprintf("prompt: built-in templates: %v", err))
	}
	return b
}

// Load overlays the prompt file at path on the built-in set. An empty path
// returns the defaults.
func Load(path string) (*Builder, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	var overlay File
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse prompts %s: %w", path, err)
	}
	return parse(&overlay)
}

func parse(overlay *File) (*Builder, error) {
	var base File
	if err := yaml.Unmarshal(defaultPrompts, &base); err != nil {
		return nil, err
	}
	chunk, merge := make(map[action.Action]string), make(map[action.Action]string)
	files := []*File{&base}
	if overlay != nil {
		files = append(files, overlay)
	}
	for _, f := range files {
		if err := mergeInto(chunk, f.Chunk); err != nil {
			return nil, fmt.Errorf("chunk prompt: %w", err)
		}
		if err := mergeInto(merge, f.Merge); err != nil {
			return nil, fmt.Errorf("merge prompt: %w", err)
		}
	}
	if overlay != nil && overlay.Refine != "" {
		base.Refine = overlay.Refine
	}

	b := &Builder{
		chunk: make(map[action.Action]*template.Template, len(chunk)),
		merge: make(map[action.Action]*template.Template, len(merge)),
	}
	if err := compileSet("chunk", chunk, b.chunk); err != nil {
		return nil, err
	}
	if err := compileSet("merge", merge, b.merge); err != nil {
		return nil, err
	}
	refine, err := compile("refine", base.Refine)
	if err != nil {
		return nil, err
	}
	b.refine = refine
	return b, nil
}

func mergeInto(dst map[action.Action]string, src map[string]string) error {
	for name, text := range src {
		a, err := action.Parse(name)
		if err != nil {
			return err
		}
		dst[a] = text
	}
	return nil
}

func compileSet(kind string, src map[action.Action]string, dst map[action.Action]*template.Template) error {
	for a, text := range src {
		t, err := compile(kind+"."+a.String(), text)
		if err != nil {
			return err
		}
		dst[a] = t
	}
	return nil
}

func compile(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse %s template: %w", name, err)
	}
	return t, nil
}

func render(t *template.Template, data Data) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", t.Name(), err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func dataFor(a action.Action, p action.Params) Data {
	return Data{
		Action:         a,
		Title:          p.Title,
		URL:            p.URL,
		TargetLanguage: p.ResolvedTargetLanguage(),
	}
}

// BuildChunk renders the prompt for one chunk: page header, action
// instruction, position note for multi-chunk runs, the no-duplicates rule,
// the target language for TRANSLATE, the previous-part context, and the chunk.
func (b *Builder) BuildChunk(in ChunkInput) (string, error) {
	t, ok := b.chunk[in.Action]
	if !ok {
		return "", fmt.Errorf("no chunk prompt for %s: %w", in.Action, action.ErrUnknownAction)
	}
	data := dataFor(in.Action, in.Params)
	data.Part, data.Total = in.Index+1, in.Total

	instruction, err := render(t, data)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	writeHeader(&sb, in.Params)
	sb.WriteString(instruction)
	sb.WriteString("\n\n")
	if in.Total > 1 {
		fmt.Fprintf(&sb, "This is part %d of %d of a longer text. Process only this part; the parts are combined afterwards.\n", data.Part, data.Total)
	}
	sb.WriteString(noDuplicatesRule)
	sb.WriteString("\n")
	if in.Action == action.Translate {
		fmt.Fprintf(&sb, "Target language: %s\n", data.TargetLanguage)
	}
	if in.Protected {
		sb.WriteString(placeholder.Hint)
		sb.WriteString("\n")
	}
	if in.Previous != "" {
		fmt.Fprintf(&sb, "\nCONTEXT (end of the previous part, for continuity only; do not process it again):\n...%s\n", in.Previous)
	}
	sb.WriteString("\nTEXT:\n")
	sb.WriteString(in.Text)
	return sb.String(), nil
}

// BuildMerge renders the merge prompt over the accepted chunk results.
func (b *Builder) BuildMerge(a action.Action, p action.Params, results []string) (string, error) {
	t, ok := b.merge[a]
	if !ok {
		return "", fmt.Errorf("no merge prompt for %s: %w", a, action.ErrUnknownAction)
	}
	data := dataFor(a, p)
	data.Total = len(results)

	instruction, err := render(t, data)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	writeHeader(&sb, p)
	sb.WriteString(instruction)
	sb.WriteString("\n")
	sb.WriteString(noDuplicatesRule)
	sb.WriteString("\n\nSECTIONS:\n\n")
	sb.WriteString(strings.Join(results, MergeSeparator))
	return sb.String(), nil
}

// BuildRefine renders the cleanup prompt for one chunk's output.
func (b *Builder) BuildRefine(a action.Action, p action.Params, text string) (string, error) {
	instruction, err := render(b.refine, dataFor(a, p))
	if err != nil {
		return "", err
	}
	return instruction + "\n\n" + text, nil
}

func writeHeader(sb *strings.Builder, p action.Params) {
	if p.Title == "" && p.URL == "" {
		return
	}
	if p.Title != "" {
		fmt.Fprintf(sb, "Page: %s\n", p.Title)
	}
	if p.URL != "" {
		fmt.Fprintf(sb, "URL: %s\n", p.URL)
	}
	sb.WriteString("\n")
}
