package pipeline

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"uplift/internal/logging"
)

// embeddedTemplates contains the default stage prompts baked into the
// binary. The templates directory is a subdirectory of this package.
//
//go:embed templates
var embeddedTemplates embed.FS

// PromptStore holds named prompt templates. Defaults come from the
// embedded filesystem; LoadOverrides replaces individual templates from
// a directory so prompt wording can be tuned without rebuilding.
type PromptStore struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewPromptStore loads the embedded default templates.
func NewPromptStore() (*PromptStore, error) {
	s := &PromptStore{templates: make(map[string]*template.Template)}

	err := fs.WalkDir(embeddedTemplates, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}
		raw, readErr := embeddedTemplates.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("failed to read embedded template %s: %w", path, readErr)
		}
		name := templateName(path)
		tmpl, parseErr := template.New(name).Parse(string(raw))
		if parseErr != nil {
			return fmt.Errorf("failed to parse embedded template %s: %w", path, parseErr)
		}
		s.templates[name] = tmpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(s.templates) == 0 {
		return nil, fmt.Errorf("no embedded templates found")
	}
	return s, nil
}

// MustNewPromptStore loads the embedded templates and panics on error.
// The embedded set is fixed at compile time, so failure here means a
// broken build.
func MustNewPromptStore() *PromptStore {
	s, err := NewPromptStore()
	if err != nil {
		panic(fmt.Sprintf("failed to load embedded prompt templates: %v", err))
	}
	return s
}

// LoadOverrides parses every *.tmpl file in dir and replaces the
// matching templates. Files that fail to parse are skipped with a
// warning so one bad edit cannot take down the defaults. A missing dir
// is not an error.
func (s *PromptStore) LoadOverrides(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read prompt dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmpl") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			logging.PipelineDebug("skipping prompt override %s: %v", path, readErr)
			continue
		}
		name := templateName(entry.Name())
		tmpl, parseErr := template.New(name).Parse(string(raw))
		if parseErr != nil {
			logging.PipelineDebug("skipping invalid prompt override %s: %v", path, parseErr)
			continue
		}
		s.mu.Lock()
		s.templates[name] = tmpl
		s.mu.Unlock()
		loaded++
	}
	if loaded > 0 {
		logging.Pipeline("loaded %d prompt override(s) from %s", loaded, dir)
	}
	return nil
}

// Render executes the named template with data.
func (s *PromptStore) Render(name string, data any) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %q: %w", name, err)
	}
	return sb.String(), nil
}

// Names lists the loaded template names, sorted.
func (s *PromptStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.templates))
	for name := range s.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func templateName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, ".tmpl")
}
