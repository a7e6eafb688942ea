package protocol

import "context"

type testNameKey struct{}

// WithTestName returns a child context that attaches name to every request
// created from it.
func WithTestName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, testNameKey{}, name)
}

// TestNameFromContext returns the test name attached by WithTestName, if any.
func TestNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(testNameKey{}).(string)
	return name, ok && name != ""
}
