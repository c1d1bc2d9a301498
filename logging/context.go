package logging

import (
	"context"

	"go.viam.com/utils"
)

type traceKey struct{}

// WithTrace marks ctx so that CDebugw logs through it are written at any log level, tagged
// with name. An empty name gets a random one.
func WithTrace(ctx context.Context, name string) context.Context {
	if name == "" {
		name = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, traceKey{}, name)
}

// TraceName returns the trace ctx was marked with, or "".
func TraceName(ctx context.Context) string {
	name, _ := ctx.Value(traceKey{}).(string)
	return name
}
