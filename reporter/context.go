package reporter

import "context"

type ctxKey struct{}

// NewContextWithReporter returns a copy of ctx carrying the given reporter.
func NewContextWithReporter(ctx context.Context, reporter Reporter) context.Context {
	return context.WithValue(ctx, ctxKey{}, reporter)
}

// GetReporterFromContext retrieves the reporter bound to ctx, if any.
func GetReporterFromContext(ctx context.Context) (Reporter, bool) {
	reporter, ok := ctx.Value(ctxKey{}).(Reporter)

	return reporter, ok
}
