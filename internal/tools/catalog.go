package tools

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Implementation identifiers a tool spec may name.
const (
	// ImplScript runs an executable speaking the JSON tool protocol.
	ImplScript = "script"
	// ImplBuiltinPrefix aliases a spec type onto a built-in tool.
	ImplBuiltinPrefix = "builtin/"
)

// DefaultTimeout bounds a script tool invocation when the spec does not
// set one.
const DefaultTimeout = 30 * time.Second

// Spec is a discovered tool-spec document. It maps a type name to an
// implementation: either an alias onto a built-in tool or an external
// command speaking the script protocol.
type Spec struct {
	Type        string
	Description string
	Impl        string
	Command     []string
	Timeout     time.Duration
	Actions     []ActionSpec
	SourceFile  string
}

// rawSpec is the YAML shape of a spec document. Action parameter
// schemas round-trip through JSON so schema keys keep their exact
// spelling.
type rawSpec struct {
	Type        string                   `yaml:"type"`
	Description string                   `yaml:"description"`
	Impl        string                   `yaml:"impl"`
	Command     []string                 `yaml:"command"`
	TimeoutSecs int                      `yaml:"timeout_seconds"`
	Actions     []map[string]interface{} `yaml:"actions"`
}

// DefaultCatalogDirs returns the standard tool-spec search path.
func DefaultCatalogDirs() []string {
	dirs := []string{filepath.Join("examples", "tools")}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".dojo", "tools"))
	}
	return dirs
}

// Catalog holds the tool specs discovered from the catalog directories.
type Catalog struct {
	specs map[string]*Spec
}

// LoadCatalog scans the given directories recursively for tool-spec
// YAML documents. Missing directories are skipped; unparseable files
// are logged and skipped so one bad spec cannot poison the catalog.
// When two specs declare the same type the later directory wins.
func LoadCatalog(dirs ...string) (*Catalog, error) {
	cat := &Catalog{specs: make(map[string]*Spec)}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}

		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			ext := filepath.Ext(path)
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			spec, err := parseSpecFile(path)
			if err != nil {
				log.Debug().Err(err).Str("path", path).Msg("skipping tool spec")
				return nil
			}
			if spec != nil {
				cat.specs[spec.Type] = spec
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning tool catalog %s: %w", dir, err)
		}
	}

	return cat, nil
}

func parseSpecFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw rawSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Type == "" {
		return nil, nil
	}

	spec := &Spec{
		Type:        raw.Type,
		Description: raw.Description,
		Impl:        raw.Impl,
		Command:     raw.Command,
		Timeout:     DefaultTimeout,
		SourceFile:  path,
	}
	if raw.TimeoutSecs > 0 {
		spec.Timeout = time.Duration(raw.TimeoutSecs) * time.Second
	}

	if len(raw.Actions) > 0 {
		encoded, err := json.Marshal(raw.Actions)
		if err != nil {
			return nil, fmt.Errorf("encoding actions: %w", err)
		}
		if err := json.Unmarshal(encoded, &spec.Actions); err != nil {
			return nil, fmt.Errorf("decoding actions: %w", err)
		}
	}

	return spec, nil
}

// Resolve returns the spec registered for a type name.
func (c *Catalog) Resolve(typeName string) (*Spec, bool) {
	spec, ok := c.specs[typeName]
	return spec, ok
}

// Specs returns all discovered specs sorted by type name.
func (c *Catalog) Specs() []*Spec {
	specs := make([]*Spec, 0, len(c.specs))
	for _, spec := range c.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// ImplFactory turns a spec into a constructor for one implementation
// kind. The script runner registers itself this way to keep the
// registry free of process-execution concerns.
type ImplFactory func(spec *Spec) Constructor

// RegisterImpl binds an implementation identifier to a factory used by
// AddCatalog for specs naming that identifier.
func (r *Registry) RegisterImpl(name string, factory ImplFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.impls == nil {
		r.impls = make(map[string]ImplFactory)
	}
	r.impls[name] = factory
}

// AddCatalog registers every catalog spec. Specs whose type is already
// registered are skipped so built-ins keep precedence; an alias onto an
// unknown built-in or an unsupported impl fails loudly because modules
// referencing the type could never start.
func (r *Registry) AddCatalog(cat *Catalog) error {
	for _, spec := range cat.Specs() {
		if _, exists := r.Lookup(spec.Type); exists {
			log.Debug().Str("type", spec.Type).Str("source", spec.SourceFile).
				Msg("tool spec shadowed by registered type")
			continue
		}

		ctor, err := r.specConstructor(spec)
		if err != nil {
			return fmt.Errorf("tool spec %s (%s): %w", spec.Type, spec.SourceFile, err)
		}
		if err := r.Register(spec.Type, ctor); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) specConstructor(spec *Spec) (Constructor, error) {
	if target, ok := strings.CutPrefix(spec.Impl, ImplBuiltinPrefix); ok {
		ctor, found := r.Lookup(target)
		if !found {
			return nil, fmt.Errorf("unknown builtin %q", target)
		}
		return ctor, nil
	}

	r.mu.RLock()
	factory, ok := r.impls[spec.Impl]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported impl %q", spec.Impl)
	}
	return factory(spec), nil
}
