package reporter

import (
	"context"

	"github.com/sirupsen/logrus"
)

// MessageWithContext forwards a message to the reporter bound to ctx, if
// there is one.
func MessageWithContext(ctx context.Context, message string, reportCtx Context) {
	reporter, ok := GetReporterFromContext(ctx)
	if !ok {
		return
	}

	if err := reporter.ReportMessageWithContext(message, reportCtx); err != nil {
		logrus.WithError(err).WithField("message", message).Error("Failed to report message")
	}
}

// ExceptionWithContext forwards an exception to the reporter bound to ctx,
// if there is one.
func ExceptionWithContext(ctx context.Context, info any, reportCtx Context) {
	reporter, ok := GetReporterFromContext(ctx)
	if !ok {
		return
	}

	if err := reporter.ReportExceptionWithContext(info, reportCtx); err != nil {
		logrus.WithError(err).Error("Failed to report exception")
	}
}
