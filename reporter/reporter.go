package reporter

type Context = map[string]any

// Reporter is an external reporting hook for anomalies that must not be
// swallowed: commit failures, counter drift, corrupt hierarchy rows.
type Reporter interface {
	ReportMessageWithContext(string, Context) error
	ReportExceptionWithContext(any, Context) error
}
