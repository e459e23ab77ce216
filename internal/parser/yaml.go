package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/parser/schema"
	"gopkg.in/yaml.v3"
)

// Parser is the contract for loading module definitions
type Parser interface {
	ParseFile(filename string) (*ast.Module, error)
	ParseBytes(data []byte) (*ast.Module, error)
	ParseReader(r io.Reader) (*ast.Module, error)
	Validate(module *ast.Module) *ast.ValidationResult
	ValidateOnly(data []byte) error
	SetStrict(strict bool)
}

// YAMLParser implements the Parser interface using go-yaml/v3
type YAMLParser struct {
	validator *schema.Validator
	semantic  *SemanticValidator
	strict    bool
}

// ParserOption configures the YAML parser
type ParserOption func(*YAMLParser)

// WithStrict enables strict parsing mode. Strict mode validates parsed
// documents against the generated JSON schema in addition to decoding
// them.
func WithStrict(strict bool) ParserOption {
	return func(p *YAMLParser) {
		p.strict = strict
	}
}

// WithValidator sets a custom schema validator
func WithValidator(validator *schema.Validator) ParserOption {
	return func(p *YAMLParser) {
		p.validator = validator
	}
}

// NewYAMLParser creates a new YAML parser with the given options
func NewYAMLParser(opts ...ParserOption) (*YAMLParser, error) {
	parser := &YAMLParser{
		semantic: NewSemanticValidator(),
	}

	for _, opt := range opts {
		opt(parser)
	}

	if parser.validator == nil {
		validator, err := schema.NewValidator()
		if err != nil {
			return nil, fmt.Errorf("failed to create schema validator: %w", err)
		}
		parser.validator = validator
	}

	return parser, nil
}

// SetStrict enables or disables strict parsing mode
func (p *YAMLParser) SetStrict(strict bool) {
	p.strict = strict
}

// ParseFile parses a module definition file
func (p *YAMLParser) ParseFile(filename string) (*ast.Module, error) {
	if !isValidModuleFile(filename) {
		return nil, fmt.Errorf("invalid file extension: expected .yaml or .yml, got %s", filepath.Ext(filename))
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ParseError{Message: fmt.Sprintf("File not found: %s", filename)}
		}
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	// Guard against pathological inputs
	if len(data) > 10*1024*1024 {
		return nil, fmt.Errorf("file too large: %d bytes (max 10MB)", len(data))
	}

	module, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	module.SourceFile = filename
	module.Position.File = filename

	return module, nil
}

// ParseBytes parses a module definition from bytes
func (p *YAMLParser) ParseBytes(data []byte) (*ast.Module, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, WrapYAMLError(err, data)
	}

	root := documentRoot(&node)
	if root == nil || root.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Message:    "Module must be a YAML mapping",
			Position:   ast.Position{Line: 1, Column: 1},
			Suggestion: "Top level must be a mapping with at least an 'id' field",
		}
	}

	var module ast.Module
	if err := root.Decode(&module); err != nil {
		return nil, WrapYAMLError(err, data)
	}

	if module.ID == "" {
		return nil, &ParseError{
			Message:  "Module must have an 'id' field",
			Position: ast.Position{Line: root.Line, Column: root.Column},
		}
	}

	module.Position = ast.Position{
		Line:   root.Line,
		Column: root.Column,
	}
	normalizeModule(&module)

	if p.strict && p.validator != nil {
		if err := p.validateSchema(data); err != nil {
			return nil, err
		}
	}

	return &module, nil
}

// ParseReader parses a module definition from a reader
func (p *YAMLParser) ParseReader(r io.Reader) (*ast.Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return p.ParseBytes(data)
}

// Validate reports structural findings for a parsed module. Findings do
// not prevent parsing; callers decide whether to refuse the module.
func (p *YAMLParser) Validate(module *ast.Module) *ast.ValidationResult {
	return p.semantic.ValidateModule(module)
}

// ValidateOnly validates module data without returning the parsed form
func (p *YAMLParser) ValidateOnly(data []byte) error {
	module, err := p.ParseBytes(data)
	if err != nil {
		return err
	}

	if p.validator != nil {
		if err := p.validateSchema(data); err != nil {
			return err
		}
	}

	return p.Validate(module).ToError()
}

// validateSchema validates raw module data against the JSON schema
func (p *YAMLParser) validateSchema(data []byte) error {
	result, err := p.validator.ValidateBytes(data)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if !result.Valid {
		var multiErr MultiError
		for _, validationErr := range result.Errors {
			multiErr.Add(&ParseError{
				Message:  validationErr.Message,
				Position: extractPositionFromPath(validationErr.Path, data),
			})
		}
		return multiErr.ToError()
	}

	return nil
}

// normalizeModule fills in the structures the decoder leaves nil so the
// rest of the system never branches on missing sections.
func normalizeModule(module *ast.Module) {
	// agent_config wins; `agent` is the legacy spelling.
	if module.AgentConfig == nil {
		module.AgentConfig = module.LegacyAgent
	}
	module.LegacyAgent = nil
	if module.Environment == nil {
		module.Environment = &ast.Environment{SandboxType: ast.SandboxLocal}
	}
	if module.Environment.SandboxType == "" {
		module.Environment.SandboxType = ast.SandboxLocal
	}
	if module.Environment.InitialState == nil {
		module.Environment.InitialState = map[string]interface{}{}
	}
	if module.Branches == nil {
		module.Branches = map[string][]*ast.Step{}
	}
}

// documentRoot unwraps the document node produced by yaml.Unmarshal.
func documentRoot(node *yaml.Node) *yaml.Node {
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil
		}
		return node.Content[0]
	}
	if node.Kind == 0 {
		// Empty input decodes to the zero node
		return nil
	}
	return node
}

// extractPositionFromPath attempts to find position from a JSON path
func extractPositionFromPath(path string, source []byte) ast.Position {
	if path == "" || path == "/" {
		return ast.Position{Line: 1, Column: 1}
	}

	pathParts := strings.Split(strings.TrimPrefix(path, "/"), "/")

	lines := strings.Split(string(source), "\n")
	for lineNum, line := range lines {
		for _, part := range pathParts {
			if strings.Contains(line, part+":") {
				return ast.Position{
					Line:   lineNum + 1,
					Column: strings.Index(line, part) + 1,
				}
			}
		}
	}

	return ast.Position{Line: 1, Column: 1}
}

// isValidModuleFile checks if the filename has a supported extension
func isValidModuleFile(filename string) bool {
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// GetSupportedExtensions returns the list of supported file extensions
func GetSupportedExtensions() []string {
	return []string{".yaml", ".yml"}
}
