package cmd

import (
	"context"
	"os"
	"strings"
)

type envKey struct{}

// WithEnv returns a context that makes commands read env instead of the
// process environment.
func WithEnv(ctx context.Context, env map[string]string) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// getEnv extracts environment variables from ctx or the OS.
func getEnv(ctx context.Context) map[string]string {
	if ctx != nil {
		if env, ok := ctx.Value(envKey{}).(map[string]string); ok {
			return env
		}
	}

	env := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) > 1 {
			env[pair[0]] = pair[1]
		}
	}
	return env
}
