// control/logging.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide logger setup on containerd/log.

package control

import (
	"strings"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// legacyLevels maps the old debug filter names to logrus levels.
var legacyLevels = map[string]string{
	"NONE":  "panic",
	"LOG":   "info",
	"TRACE": "debug",
	"DEBUG": "debug",
	"DUMP":  "trace",
}

// ParseLevel normalizes a level name. It accepts logrus names, "none"
// and the legacy upper-case filter names.
func ParseLevel(s string) (string, error) {
	if s == "" {
		return "info", nil
	}
	if l, ok := legacyLevels[s]; ok {
		return l, nil
	}
	l := strings.ToLower(s)
	if l == "none" {
		return "panic", nil
	}
	if _, err := logrus.ParseLevel(l); err != nil {
		return "", errors.Wrapf(err, "log: level %q", s)
	}
	return l, nil
}

// SetupLogging configures the level and output format of log.L.
func SetupLogging(cfg Config) error {
	lvl, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if err := log.SetLevel(lvl); err != nil {
		return errors.Wrap(err, "log: set level")
	}
	format := log.TextFormat
	if strings.EqualFold(cfg.LogFormat, "json") {
		format = log.JSONFormat
	}
	return errors.Wrap(log.SetFormat(format), "log: set format")
}
