// Package logging centralizes the sirupsen/logrus setup shared by every
// CoverFS component, so the CLI has one place to wire verbosity and
// output format instead of each package configuring logrus itself.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Configure sets the package-wide logrus level and formatter. verbose
// selects debug-level logging; otherwise info-level.
func Configure(verbose bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
		return
	}
	logrus.SetLevel(logrus.InfoLevel)
}

// For returns a component-scoped logger entry, the same pattern every
// internal package uses for its own package-level logger.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
