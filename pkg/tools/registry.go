// Package tools implements ToolRegistry: a name->tool map that validates
// input against each tool's declared JSON schema before dispatch, per
// spec.md §4.M.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"

	"go.opentelemetry.io/otel/attribute"

	"github.com/convomem/convomem/pkg/concurrency"
	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/convomem/convomem/pkg/logger"
	"github.com/convomem/convomem/pkg/telemetry"
)

// Tool is one named, schema-validated operation the registry can dispatch
// to. Input is generated by InputSchema and validated before Run is called,
// so Run can assume rawInput already conforms to the schema.
type Tool interface {
	Name() string
	Description() string
	InputSchema() *jsonschema.Schema
	Run(ctx context.Context, rawInput json.RawMessage) (any, error)
}

// Stats is the per-tool call counter the registry maintains across its
// lifetime.
type Stats struct {
	Calls     uint64
	Errors    uint64
	TotalTime time.Duration
}

type registeredTool struct {
	tool     Tool
	compiled *validator.Schema
}

// Registry holds a name->tool map, compiling and caching each tool's input
// validator at Register time.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]*registeredTool
	stats         map[string]*Stats
	toolTimeoutMs int
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*registeredTool), stats: make(map[string]*Stats)}
}

// SetTimeout bounds every subsequent Execute call to ms milliseconds. A
// non-positive value disables the bound (the default).
func (r *Registry) SetTimeout(ms int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolTimeoutMs = ms
}

// Register compiles t's input schema and adds it under t.Name(). Registering
// a name twice overwrites the previous registration.
func (r *Registry) Register(t Tool) error {
	schemaBytes, err := json.Marshal(t.InputSchema())
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to marshal tool schema")
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to decode tool schema")
	}

	c := validator.NewCompiler()
	resourceID := fmt.Sprintf("%s.schema.json", t.Name())
	if err := c.AddResource(resourceID, schemaDoc); err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to add tool schema resource")
	}
	compiled, err := c.Compile(resourceID)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to compile tool schema")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = &registeredTool{tool: t, compiled: compiled}
	r.stats[t.Name()] = &Stats{}
	return nil
}

// Execute looks up name, validates rawInput against its compiled schema,
// runs it, and returns the envelope spec.md §4.M describes. Execute never
// returns a Go error directly: every outcome, including ToolNotFound and
// Validation, is folded into the returned Envelope so callers have one
// uniform shape to serialize.
func (r *Registry) Execute(ctx context.Context, name string, rawInput json.RawMessage) cmerrors.Envelope {
	r.mu.RLock()
	rt, ok := r.tools[name]
	stats := r.stats[name]
	r.mu.RUnlock()

	if !ok {
		return cmerrors.FromError(cmerrors.New(cmerrors.ToolNotFound, fmt.Sprintf("tool not found: %s", name)))
	}

	var decoded any
	if len(rawInput) == 0 {
		rawInput = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(rawInput, &decoded); err != nil {
		return cmerrors.FromError(cmerrors.Validationf("input", "not valid JSON: %v", err))
	}
	if err := rt.compiled.Validate(decoded); err != nil {
		return cmerrors.FromError(cmerrors.Validationf("input", "%v", err))
	}

	r.mu.RLock()
	timeoutMs := r.toolTimeoutMs
	r.mu.RUnlock()
	runCtx, cancel := concurrency.Deadline(ctx, timeoutMs)
	defer cancel()
	requestID := uuid.NewString()
	runCtx = logger.WithFields(runCtx, map[string]any{"request_id": requestID, "tool": name})

	start := time.Now()
	var result any
	err := telemetry.WithSpan(runCtx, "tool.execute", func(spanCtx context.Context) error {
		var runErr error
		result, runErr = rt.tool.Run(spanCtx, rawInput)
		return runErr
	}, attribute.String("tool.name", name), attribute.String("request.id", requestID))
	elapsed := time.Since(start)

	r.mu.Lock()
	stats.Calls++
	stats.TotalTime += elapsed
	if err != nil {
		stats.Errors++
	}
	r.mu.Unlock()

	if err != nil {
		return cmerrors.FromError(err)
	}
	return cmerrors.Success(result)
}

// Stats returns a snapshot of per-tool call counters.
func (r *Registry) Stats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Stats, len(r.stats))
	for name, s := range r.stats {
		out[name] = *s
	}
	return out
}

// HealthResult is one tool's health probe outcome.
type HealthResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HealthCheck runs every registered tool's zero-value-safe Run path isn't
// assumed; instead it reports per-tool registration health (schema compiled,
// present in the map) and rolls that into an aggregate boolean, matching
// spec.md §4.M without requiring tools to define a separate probe method.
func (r *Registry) HealthCheck() (map[string]HealthResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]HealthResult, len(r.tools))
	allOK := true
	for name, rt := range r.tools {
		ok := rt.tool != nil && rt.compiled != nil
		out[name] = HealthResult{OK: ok}
		if !ok {
			allOK = false
		}
	}
	return out, allOK
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Describe returns (description, inputSchema) for a registered tool, used by
// the MCP server binding to advertise the tool list.
func (r *Registry) Describe(name string) (string, *jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return "", nil, false
	}
	return rt.tool.Description(), rt.tool.InputSchema(), true
}

// GenerateSchema reflects Go type T into a JSON schema, used by every tool's
// InputSchema to avoid hand-maintaining schema literals alongside the input
// struct.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{AllowAdditionalProperties: false, DoNotReference: true}
	var v T
	return reflector.Reflect(v)
}
