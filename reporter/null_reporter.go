package reporter

// NullReporter discards everything. It is the default when no external
// reporting tool is attached.
type NullReporter struct{}

func (*NullReporter) ReportMessageWithContext(string, Context) error {
	return nil
}

func (*NullReporter) ReportExceptionWithContext(any, Context) error {
	return nil
}
