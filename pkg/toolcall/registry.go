package toolcall

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/nadira/kirin/internal/observability"
	"github.com/nadira/kirin/pkg/provider"
)

const maxOutputBytes = 10 * 1024

// Parameter describes one tool argument.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Handler executes a tool with parsed arguments.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Definition describes a registered tool.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Result is the serialized payload returned to the model after a tool
// runs. Failures are carried in Error; NotImplemented flags a tool with
// no registered handler.
type Result struct {
	Success        bool   `json:"success"`
	Output         any    `json:"output,omitempty"`
	Error          string `json:"error,omitempty"`
	NotImplemented bool   `json:"not_implemented,omitempty"`
	Truncated      bool   `json:"truncated,omitempty"`
}

// Registry holds tool definitions and their argument schemas.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	observability.EnsureRegistered()
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool. Registering an existing name is an error.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q: handler is required", def.Name)
	}

	schema, err := buildSchema(def)
	if err != nil {
		return fmt.Errorf("tool %q: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	log.Info().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

func buildSchema(def Definition) (*gojsonschema.Schema, error) {
	properties := make(map[string]any)
	var required []string
	for _, p := range def.Parameters {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schemaMap := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// Declarations returns provider-facing tool declarations.
func (r *Registry) Declarations() []provider.ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]provider.ToolDeclaration, 0, len(r.tools))
	for _, def := range r.tools {
		properties := make(map[string]any)
		var required []string
		for _, p := range def.Parameters {
			properties[p.Name] = map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		schema := map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			schema["required"] = required
		}
		out = append(out, provider.ToolDeclaration{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		})
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the named tool against a raw JSON argument payload and
// returns the serialized result. Every failure is folded into the
// payload: an unknown tool, unparseable or invalid arguments, and
// handler errors all produce a Result the model can read.
func (r *Registry) Execute(ctx context.Context, name, rawArgs string) string {
	start := time.Now()
	result := r.execute(ctx, name, rawArgs)
	observability.RecordToolExecution(name, time.Since(start), result.Success)

	payload, err := json.Marshal(result)
	if err != nil {
		return `{"success":false,"error":"encode tool result"}`
	}
	return string(payload)
}

func (r *Registry) execute(ctx context.Context, name, rawArgs string) Result {
	r.mu.RLock()
	def, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		log.Warn().Str("tool", name).Msg("Tool not implemented")
		return Result{
			Error:          fmt.Sprintf("tool %q is not implemented", name),
			NotImplemented: true,
		}
	}

	params := make(map[string]any)
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &params); err != nil {
			return Result{Error: fmt.Sprintf("parse arguments: %v", err)}
		}
	}

	if err := validateParams(schema, params); err != nil {
		return Result{Error: fmt.Sprintf("invalid arguments: %v", err)}
	}

	output, err := def.Handler(ctx, params)
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("Tool execution failed")
		return Result{Error: err.Error()}
	}

	output, truncated := truncateOutput(output)
	return Result{Success: true, Output: output, Truncated: truncated}
}

func validateParams(schema *gojsonschema.Schema, params map[string]any) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

func truncateOutput(output any) (any, bool) {
	str, ok := output.(string)
	if !ok || len(str) <= maxOutputBytes {
		return output, false
	}
	return str[:maxOutputBytes] + "\n... [output truncated]", true
}
