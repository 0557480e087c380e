package function

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cloudwego/eino/schema"
)

// ErrUnknownFunction is returned when the model names a function that was
// never registered.
var ErrUnknownFunction = errors.New("unknown function")

// ArgumentError reports arguments that fail the registered schema before the
// function is ever invoked.
type ArgumentError struct {
	Function string
	Argument string
	Reason   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("function %s: argument %q %s", e.Function, e.Argument, e.Reason)
}

// Result is the uniform contract every registered function returns,
// regardless of what it does internally. A failed operation is a Result with
// Success=false, not an error.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Func is the fixed callable signature for registered functions.
type Func func(ctx context.Context, args map[string]any) Result

// Parameter describes one named argument in a function's schema.
type Parameter struct {
	Type        schema.DataType
	Description string
	Required    bool
}

// Registration binds a function name to its callable and parameter schema.
type Registration struct {
	Name        string
	Description string
	Parameters  map[string]*Parameter
	Call        Func
}

// Registry maps function names to callables and advertises their schemas as
// model tool specs. Registrations are validated once at construction; lookups
// at call time only fail for unknown names or schema violations.
type Registry struct {
	entries map[string]Registration
}

// NewRegistry validates and indexes the supplied registrations.
func NewRegistry(regs ...Registration) (*Registry, error) {
	entries := make(map[string]Registration, len(regs))
	for _, reg := range regs {
		if reg.Name == "" {
			return nil, errors.New("function registration missing a name")
		}
		if reg.Call == nil {
			return nil, fmt.Errorf("function %s registered without a callable", reg.Name)
		}
		if _, dup := entries[reg.Name]; dup {
			return nil, fmt.Errorf("function %s registered twice", reg.Name)
		}
		entries[reg.Name] = reg
	}
	return &Registry{entries: entries}, nil
}

// Specs renders every registration as a tool spec for the model, in stable
// name order.
func (r *Registry) Specs() []*schema.ToolInfo {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		reg := r.entries[name]
		params := make(map[string]*schema.ParameterInfo, len(reg.Parameters))
		for argName, p := range reg.Parameters {
			params[argName] = &schema.ParameterInfo{
				Type:     p.Type,
				Desc:     p.Description,
				Required: p.Required,
			}
		}
		specs = append(specs, &schema.ToolInfo{
			Name:        reg.Name,
			Desc:        reg.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return specs
}

// Invoke dispatches to the named function. The returned error only covers a
// missing registration or a schema violation; the outcome of the function
// itself rides in Result.Success.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (Result, error) {
	reg, ok := r.entries[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}

	for argName, p := range reg.Parameters {
		if !p.Required {
			continue
		}
		if _, present := args[argName]; !present {
			return Result{}, &ArgumentError{Function: name, Argument: argName, Reason: "is required"}
		}
	}

	return reg.Call(ctx, args), nil
}
