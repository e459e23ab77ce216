package agent

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/provider"
)

// defaultPreference is the order tried when no agent is named.
var defaultPreference = []string{
	"dojo/core/gpt4-support",
	"dojo/core/claude-support",
}

// Spec is one agent definition parsed from YAML.
type Spec struct {
	ID           string                 `yaml:"id" json:"id"`
	Name         string                 `yaml:"name,omitempty" json:"name,omitempty"`
	Kind         string                 `yaml:"kind,omitempty" json:"kind,omitempty"`
	Model        string                 `yaml:"model,omitempty" json:"model,omitempty"`
	SystemPrompt string                 `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Tools        []string               `yaml:"tools,omitempty" json:"tools,omitempty"`
	Params       map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
	Impl         Impl                   `yaml:"impl,omitempty" json:"impl,omitempty"`

	// SourceFile records where the spec was found.
	SourceFile string `yaml:"-" json:"-"`
}

// Impl holds the kind-specific wiring of a spec.
type Impl struct {
	Script  []Action `yaml:"script,omitempty" json:"script,omitempty"`
	URL     string   `yaml:"url,omitempty" json:"url,omitempty"`
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`
}

// WithSystemPrompt returns a copy of the spec with the prompt
// replaced. Modules use this to override the agent's own prompt via
// agent_config.
func (s *Spec) WithSystemPrompt(prompt string) *Spec {
	clone := *s
	clone.SystemPrompt = prompt
	return &clone
}

// DefaultDirs returns the standard agent spec search path.
func DefaultDirs() []string {
	dirs := []string{filepath.Join("examples", "agents")}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".dojo", "agents"))
	}
	return dirs
}

// Loader holds the agent specs discovered on disk.
type Loader struct {
	specs map[string]*Spec
}

// LoadSpecs walks dirs for .yaml/.yml agent specs. Missing directories
// are skipped, unparsable or id-less files are logged and skipped, and
// later directories win on duplicate ids.
func LoadSpecs(dirs ...string) (*Loader, error) {
	if len(dirs) == 0 {
		dirs = DefaultDirs()
	}
	loader := &Loader{specs: make(map[string]*Spec)}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			spec, err := parseSpecFile(path)
			if err != nil {
				log.Debug().Err(err).Str("file", path).Msg("skipping agent spec")
				return nil
			}
			if spec == nil {
				return nil
			}
			loader.specs[spec.ID] = spec
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning agent dir %s: %w", dir, err)
		}
	}
	return loader, nil
}

func parseSpecFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if spec.ID == "" {
		return nil, nil
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}
	if spec.Kind == "" {
		spec.Kind = KindLLMPrompt
	}
	spec.SourceFile = path
	return &spec, nil
}

// IDs returns the discovered spec ids, sorted.
func (l *Loader) IDs() []string {
	ids := make([]string, 0, len(l.specs))
	for id := range l.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Spec returns the spec registered under id.
func (l *Loader) Spec(id string) (*Spec, bool) {
	spec, ok := l.specs[id]
	return spec, ok
}

// Specs returns all discovered specs sorted by id.
func (l *Loader) Specs() []*Spec {
	specs := make([]*Spec, 0, len(l.specs))
	for _, spec := range l.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

// DefaultSpec picks the agent used when none is named: the preferred
// ids first, then the lexicographically first spec.
func (l *Loader) DefaultSpec() (*Spec, error) {
	for _, id := range defaultPreference {
		if spec, ok := l.specs[id]; ok {
			return spec, nil
		}
	}
	ids := l.IDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("no agents available")
	}
	return l.specs[ids[0]], nil
}

// ForModule builds the agent a module run will face: the named spec,
// or the default when id is empty, with the module's
// agent_config.system_prompt override applied.
func (l *Loader) ForModule(id string, m *ast.Module, providers *provider.Registry) (Agent, error) {
	spec, err := l.resolve(id)
	if err != nil {
		return nil, err
	}
	if m != nil {
		if prompt, ok := m.AgentConfig["system_prompt"].(string); ok && prompt != "" {
			spec = spec.WithSystemPrompt(prompt)
		}
	}
	return New(spec, providers)
}

func (l *Loader) resolve(id string) (*Spec, error) {
	if id == "" {
		return l.DefaultSpec()
	}
	spec, ok := l.specs[id]
	if !ok {
		return nil, fmt.Errorf("agent %q not found", id)
	}
	return spec, nil
}
