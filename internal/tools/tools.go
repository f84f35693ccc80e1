package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/shelfdesk/shelfdesk/internal/audit"
	"github.com/shelfdesk/shelfdesk/internal/bookstore"
)

// Tool is a single capability the oracle can invoke. Parameters is a
// JSON Schema object; arguments are validated against it before the
// handler runs.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the available tools and enforces the call contract:
// validate, dispatch, audit.
type Registry struct {
	logger  *slog.Logger
	audit   *audit.Store
	tools   map[string]*Tool
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry returns an empty registry. Tools are added with Register.
func NewRegistry(logger *slog.Logger, auditStore *audit.Store) *Registry {
	return &Registry{
		logger:  logger,
		audit:   auditStore,
		tools:   make(map[string]*Tool),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool and compiles its parameter schema. A tool with
// a schema that does not compile is a programming error, not a runtime
// condition, so registration fails loudly.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return errors.New("tool has no name")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.Parameters))
	if err != nil {
		return fmt.Errorf("compiling schema for %s: %w", t.Name, err)
	}
	r.tools[t.Name] = t
	r.schemas[t.Name] = schema
	return nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders the registry in the wire shape chat providers
// expect for their tools parameter.
func (r *Registry) Definitions() []map[string]any {
	defs := make([]map[string]any, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return defs
}

// Execute validates argsJSON against the tool's schema, runs the
// handler, and records the outcome in the audit trail. Validation
// failures short-circuit before dispatch and leave no audit entry.
// Domain rejections come back as *ExecutionError and are audited with
// the failure message. Any other handler error is infrastructure and
// propagates unwrapped.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", &UnknownToolError{ToolName: name}
	}

	args := map[string]any{}
	if strings.TrimSpace(argsJSON) != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", &ValidationError{ToolName: name, Reason: "arguments are not a JSON object"}
		}
	}

	result, err := r.schemas[name].Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return "", fmt.Errorf("validating arguments for %s: %w", name, err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return "", &ValidationError{
			ToolName: name,
			Field:    first.Field(),
			Reason:   first.Description(),
		}
	}

	sessionID := SessionFromContext(ctx)
	r.logger.Debug("executing tool", "tool", name, "session_id", sessionID)

	out, err := tool.Handler(ctx, args)
	if err != nil {
		var opErr *bookstore.OpError
		if errors.As(err, &opErr) {
			execErr := &ExecutionError{ToolName: name, Err: err}
			if auditErr := r.audit.Record(ctx, sessionID, name, argsJSON, "", execErr.Error()); auditErr != nil {
				r.logger.Error("recording failed tool call", "tool", name, "error", auditErr)
			}
			return "", execErr
		}
		return "", err
	}

	if auditErr := r.audit.Record(ctx, sessionID, name, argsJSON, out, ""); auditErr != nil {
		r.logger.Error("recording tool call", "tool", name, "error", auditErr)
	}
	return out, nil
}
