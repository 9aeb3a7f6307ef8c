package engine

import "github.com/tailored-agentic-units/evalkernel/gateway"

// Expose declares the engine's remotely accessible attributes under owner:
// execution_count, state and the hook tags (read-only) and echo_max_lines
// (read-write, at least 1).
func (e *Engine) Expose(owner *gateway.Owner) error {
	readOnly := map[string]func() any{
		"execution_count":    func() any { return e.ExecutionCount() },
		"state":              func() any { return e.State() },
		"pre_execute_hooks":  func() any { return e.pre.Tags() },
		"post_execute_hooks": func() any { return e.post.Tags() },
	}
	for name, get := range readOnly {
		if err := owner.ReadOnly(name, get); err != nil {
			return err
		}
	}
	return owner.Declare("echo_max_lines", gateway.Attribute{
		Get:      func() any { return e.EchoMaxLines() },
		Validate: gateway.MinInt(1),
		Set: func(value any) error {
			n, err := gateway.Int(value)
			if err != nil {
				return err
			}
			return e.SetEchoMaxLines(n)
		},
	})
}
