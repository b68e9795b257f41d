package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"text/template"
)

//go:embed prompts
var embedded embed.FS

// Well-known prompt files and steps.
const (
	SystemFile   = "system.txt"
	AnalysisFile = "data_analysis.json"

	StepEnrichData = "enrich_data"
	StepGenReport  = "gen_report"
)

// Data is the template input.
type Data struct {
	VehicleID string
	Query     string
}

// Loader reads prompts from an optional override directory, falling back
// to the embedded defaults.
type Loader struct {
	override fs.FS
	defaults fs.FS
}

// NewLoader returns a Loader. An empty dir uses only the embedded prompts.
func NewLoader(dir string) *Loader {
	sub, err := fs.Sub(embedded, "prompts")
	if err != nil {
		panic(err)
	}
	l := &Loader{defaults: sub}
	if dir != "" {
		l.override = os.DirFS(dir)
	}
	return l
}

// Languages returns the languages with embedded prompts.
func Languages() []string {
	entries, _ := fs.ReadDir(embedded, "prompts")
	var langs []string
	for _, e := range entries {
		if e.IsDir() {
			langs = append(langs, e.Name())
		}
	}
	return langs
}

// System renders the system prompt for lang.
func (l *Loader) System(lang string, data Data) (string, error) {
	raw, err := l.read(lang, SystemFile)
	if err != nil {
		return "", err
	}
	return render(lang+"/"+SystemFile, string(raw), data)
}

// LoadJSON returns the raw templates of a JSON prompt file, keyed by step.
func (l *Loader) LoadJSON(name, lang string) (map[string]string, error) {
	raw, err := l.read(lang, name)
	if err != nil {
		return nil, err
	}
	var steps map[string]string
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("parsing prompt file %s/%s: %w", lang, name, err)
	}
	return steps, nil
}

// Step renders one step prompt of the data analysis file.
func (l *Loader) Step(lang, step string, data Data) (string, error) {
	steps, err := l.LoadJSON(AnalysisFile, lang)
	if err != nil {
		return "", err
	}
	tmpl, ok := steps[step]
	if !ok {
		return "", fmt.Errorf("prompt step %q not found in %s/%s", step, lang, AnalysisFile)
	}
	return render(lang+"/"+step, tmpl, data)
}

func (l *Loader) read(lang, name string) ([]byte, error) {
	p := path.Join(lang, name)
	if l.override != nil {
		data, err := fs.ReadFile(l.override, p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading prompt %s: %w", p, err)
		}
	}
	data, err := fs.ReadFile(l.defaults, p)
	if err != nil {
		return nil, fmt.Errorf("reading prompt %s: %w", p, err)
	}
	return data, nil
}

func render(name, text string, data Data) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing prompt %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return buf.String(), nil
}
