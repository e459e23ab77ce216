// Package builtin provides the simulation tools that ship with the
// engine: a storefront, a mailbox, a browser, a retail counter, a
// wedding planner, and a lemonade stand. Each instance belongs to a
// single session and mutates only its own state plus the env_state it
// is handed.
package builtin

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/schema"
	"github.com/dojoai/dojo/internal/tools"
)

// Types registered by Register, in the order they ship.
const (
	TypeShopify  = "mock_shopify"
	TypeEmail    = "mock_email"
	TypeBrowser  = "mock_browser"
	TypeStore    = "mock_store"
	TypeWedding  = "mock_wedding"
	TypeLemonade = "mock_lemonade"
)

// Register adds every built-in tool type to the registry.
func Register(reg *tools.Registry) error {
	ctors := map[string]tools.Constructor{
		TypeShopify:  func(ref *ast.ToolRef) (tools.Tool, error) { return NewShopify(ref), nil },
		TypeEmail:    func(ref *ast.ToolRef) (tools.Tool, error) { return NewEmail(ref), nil },
		TypeBrowser:  func(ref *ast.ToolRef) (tools.Tool, error) { return NewBrowser(ref), nil },
		TypeStore:    func(ref *ast.ToolRef) (tools.Tool, error) { return NewStore(ref), nil },
		TypeWedding:  func(ref *ast.ToolRef) (tools.Tool, error) { return NewWedding(ref), nil },
		TypeLemonade: func(ref *ast.ToolRef) (tools.Tool, error) { return NewLemonade(ref), nil },
	}

	for name, ctor := range ctors {
		if err := reg.Register(name, ctor); err != nil {
			return err
		}
	}
	return nil
}

// base carries the identity every built-in tool shares: the reference
// name the module gave the instance, a description, and the bound
// config map.
type base struct {
	name        string
	description string
	config      map[string]interface{}
}

func newBase(ref *ast.ToolRef, defaultDescription string) base {
	description := ref.Description
	if description == "" {
		description = defaultDescription
	}
	config := ref.Config
	if config == nil {
		config = map[string]interface{}{}
	}
	return base{name: ref.Name, description: description, config: config}
}

func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return b.description }

func (b *base) cfgFloat(key string, def float64) float64 {
	if v, ok := toFloat(b.config[key]); ok {
		return v
	}
	return def
}

func (b *base) cfgInt(key string, def int) int {
	if v, ok := toInt(b.config[key]); ok {
		return v
	}
	return def
}

func (b *base) cfgString(key, def string) string {
	if v, ok := b.config[key].(string); ok {
		return v
	}
	return def
}

func (b *base) cfgBool(key string, def bool) bool {
	if v, ok := b.config[key].(bool); ok {
		return v
	}
	return def
}

func (b *base) cfgMap(key string) (map[string]interface{}, bool) {
	v, ok := b.config[key].(map[string]interface{})
	return v, ok
}

func (b *base) cfgMapSlice(key string) []map[string]interface{} {
	raw, ok := b.config[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// Argument coercion. Args arrive either from an agent's JSON function
// call (numbers are float64) or from YAML step params (numbers are int
// or float64), so every numeric read goes through these.

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	}
	return 0, false
}

// mapOfMaps narrows a config section whose values are records, dropping
// entries of any other shape.
func mapOfMaps(raw map[string]interface{}) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(raw))
	for key, value := range raw {
		if record, ok := value.(map[string]interface{}); ok {
			out[key] = record
		}
	}
	return out
}

// sortedKeys keeps list-style responses deterministic; the reference
// data lives in maps.
func sortedKeys(m map[string]map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func floatArg(args map[string]interface{}, key string) (float64, bool) {
	return toFloat(args[key])
}

func intArg(args map[string]interface{}, key string, def int) int {
	if v, ok := toInt(args[key]); ok {
		return v
	}
	return def
}

func boolArg(args map[string]interface{}, key string) bool {
	v, ok := args[key].(bool)
	return ok && v
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// newRNG builds the tool's random source, honoring a "seed" config key
// so scenarios can be replayed deterministically.
func (b *base) newRNG() *rand.Rand {
	if seed, ok := toInt(b.config["seed"]); ok {
		return rand.New(rand.NewSource(int64(seed)))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Parameter-schema shorthand for Actions() declarations.

func objectSchema(props map[string]schema.JSON, required ...string) schema.JSON {
	if props == nil {
		props = map[string]schema.JSON{}
	}
	return schema.JSON{Type: "object", Properties: props, Required: required}
}

func stringProp(description string) schema.JSON {
	return schema.JSON{Type: "string", Description: description}
}

func numberProp(description string) schema.JSON {
	return schema.JSON{Type: "number", Description: description}
}

func integerProp(description string) schema.JSON {
	return schema.JSON{Type: "integer", Description: description}
}

func booleanProp(description string) schema.JSON {
	return schema.JSON{Type: "boolean", Description: description}
}
