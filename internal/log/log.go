// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

// Package log provides the ambient structured-logging collaborator every
// component takes by constructor injection, grounded on the teacher's
// chromium.makeLogger / common.NewLogger pattern.
package log

import (
	"os"
	"regexp"

	"github.com/sirupsen/logrus"
)

// Logger is the narrow interface components depend on. It is satisfied by
// *Entry below; tests may supply their own stub.
type Logger interface {
	Debugf(category, format string, args ...interface{})
	Infof(category, format string, args ...interface{})
	Warnf(category, format string, args ...interface{})
	Errorf(category, format string, args ...interface{})
	WithField(key string, value interface{}) Logger
}

// Entry wraps a logrus.Entry and applies an optional category filter, the
// same shape as the teacher's common.Logger: a category string (e.g.
// "broker", "supervisor") is matched against a regexp before the message
// is emitted, so a caller can ask for only a slice of the runtime's
// output.
type Entry struct {
	entry    *logrus.Entry
	category *regexp.Regexp
}

// New builds a Logger backed by logrus. categoryFilter may be nil, in
// which case every category is logged.
func New(categoryFilter *regexp.Regexp) *Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return &Entry{entry: logrus.NewEntry(l), category: categoryFilter}
}

// FromEnv builds a Logger whose level is taken from DEVTOOLS_LOG_LEVEL
// (the teacher's XK6_BROWSER_LOG, renamed per SPEC_FULL.md since this
// runtime is not a k6 extension) and whose category filter is compiled
// from filterPattern.
func FromEnv(filterPattern string) (*Entry, error) {
	var filter *regexp.Regexp
	if filterPattern != "" {
		re, err := regexp.Compile(filterPattern)
		if err != nil {
			return nil, err
		}
		filter = re
	}
	e := New(filter)
	if lvl, ok := os.LookupEnv("DEVTOOLS_LOG_LEVEL"); ok {
		if err := e.SetLevel(lvl); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetLevel parses and applies a logrus level name.
func (e *Entry) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	e.entry.Logger.SetLevel(lvl)
	return nil
}

func (e *Entry) allowed(category string) bool {
	return e.category == nil || e.category.MatchString(category)
}

func (e *Entry) Debugf(category, format string, args ...interface{}) {
	if e.allowed(category) {
		e.entry.WithField("category", category).Debugf(format, args...)
	}
}

func (e *Entry) Infof(category, format string, args ...interface{}) {
	if e.allowed(category) {
		e.entry.WithField("category", category).Infof(format, args...)
	}
}

func (e *Entry) Warnf(category, format string, args ...interface{}) {
	if e.allowed(category) {
		e.entry.WithField("category", category).Warnf(format, args...)
	}
}

func (e *Entry) Errorf(category, format string, args ...interface{}) {
	if e.allowed(category) {
		e.entry.WithField("category", category).Errorf(format, args...)
	}
}

func (e *Entry) WithField(key string, value interface{}) Logger {
	return &Entry{entry: e.entry.WithField(key, value), category: e.category}
}

// NopLogger returns a Logger that discards every message, for tests that
// don't care about log output.
func NopLogger() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.PanicLevel)
	return &Entry{entry: logrus.NewEntry(l)}
}
