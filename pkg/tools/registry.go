// Package tools exposes the mirror and sandbox to the model as named,
// schema-checked tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
	"github.com/ekaya-inc/pokedex/pkg/llm"
	"github.com/ekaya-inc/pokedex/pkg/logging"
)

// Handler is one callable tool.
type Handler interface {
	Name() string
	Definition() llm.ToolDefinition
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// Invocation records one tool call and its outcome, in the order executed.
type Invocation struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments string         `json:"arguments"`
	Result    string         `json:"result"`
	ErrorKind apperrors.Kind `json:"error_kind,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// Failed reports whether the call produced an error result.
func (i *Invocation) Failed() bool {
	return i.ErrorKind != ""
}

type registered struct {
	handler Handler
	schema  *gojsonschema.Schema
}

// Registry maps tool names to handlers. Unknown names fail closed.
type Registry struct {
	handlers map[string]registered
	order    []string
	logger   *zap.Logger
}

// NewRegistry creates a registry holding handlers.
func NewRegistry(logger *zap.Logger, handlers ...Handler) (*Registry, error) {
	r := &Registry{
		handlers: make(map[string]registered),
		logger:   logger.Named("tools"),
	}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a handler and compiles its argument schema.
func (r *Registry) Register(h Handler) error {
	name := h.Name()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("tool %q registered twice", name)
	}
	def := h.Definition()
	if def.Name != name {
		return fmt.Errorf("tool %q: definition name %q does not match", name, def.Name)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Parameters))
	if err != nil {
		return fmt.Errorf("tool %q: invalid parameter schema: %w", name, err)
	}

	r.handlers[name] = registered{handler: h, schema: schema}
	r.order = append(r.order, name)
	return nil
}

// Definitions returns the tool definitions in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.handlers[name].handler.Definition())
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Lookup returns the handler for name, or a KindUnknownTool error.
func (r *Registry) Lookup(name string) (Handler, error) {
	reg, ok := r.handlers[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindUnknownTool,
			"unknown tool %q; available tools: %s", name, strings.Join(r.order, ", "))
	}
	return reg.handler, nil
}

// Validate checks raw arguments against the tool's schema. Empty arguments
// are treated as an empty object.
func (r *Registry) Validate(name string, raw json.RawMessage) (json.RawMessage, error) {
	reg, ok := r.handlers[name]
	if !ok {
		_, err := r.Lookup(name)
		return nil, err
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = json.RawMessage("{}")
	}
	if !json.Valid(raw) {
		return nil, apperrors.New(apperrors.KindInvalidArguments, "arguments are not valid JSON")
	}

	result, err := reg.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArguments, "arguments could not be validated", err)
	}
	if !result.Valid() {
		problems := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			problems[i] = e.String()
		}
		return nil, apperrors.Newf(apperrors.KindInvalidArguments, "invalid arguments: %s", strings.Join(problems, "; "))
	}
	return raw, nil
}

// Call validates arguments and invokes the named tool.
func (r *Registry) Call(ctx context.Context, name string, raw json.RawMessage) (result any, err error) {
	args, err := r.Validate(name, raw)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Tool handler panicked",
				zap.String("tool", name),
				zap.Any("panic", p),
				zap.Stack("stack"))
			result, err = nil, apperrors.Newf(apperrors.KindEvalFailed, "%s failed unexpectedly: %v", name, p)
		}
	}()
	return r.handlers[name].handler.Invoke(ctx, args)
}

// Execute runs one model tool call. Failures never escape as Go errors;
// they are rendered as structured error JSON in the Invocation result.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) Invocation {
	inv := Invocation{
		ID:        call.ID,
		Name:      call.Function.Name,
		Arguments: call.Function.Arguments,
	}
	start := time.Now()

	result, err := r.Call(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
	inv.Duration = time.Since(start)

	if err != nil {
		kind, msg := classify(err)
		inv.ErrorKind = kind
		inv.Result = NewErrorResult(kind, msg)
		r.logger.Info("Tool call failed",
			zap.String("tool", inv.Name),
			zap.String("arguments", logging.SanitizeQuery(inv.Arguments)),
			zap.String("kind", string(kind)),
			zap.String("error", logging.SanitizeError(err)),
			zap.Duration("elapsed", inv.Duration))
		return inv
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		inv.ErrorKind = apperrors.KindEvalFailed
		inv.Result = NewErrorResult(apperrors.KindEvalFailed, "result could not be encoded: "+err.Error())
		return inv
	}
	inv.Result = string(encoded)

	r.logger.Debug("Tool call complete",
		zap.String("tool", inv.Name),
		zap.String("arguments", logging.SanitizeQuery(inv.Arguments)),
		zap.Int("result_bytes", len(inv.Result)),
		zap.Duration("elapsed", inv.Duration))

	return inv
}
