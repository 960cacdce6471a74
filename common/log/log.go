// Package log sets up the server's single leveled logger.
package log

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"
)

// Log is the module-level logger every package in this repository uses.
// It is re-pointed by Setup once the run id and level are known.
var Log = logging.MustGetLogger("")

// RunID identifies this server process in every log line, so that logs
// from concurrently running sessions on a shared host are distinguishable.
var RunID = uuid.Must(uuid.NewV4()).String()[:8]

// Setup installs a colorized stderr backend at defaultLevel, overridable
// by the VCTUNNEL_LOG_LEVEL environment variable.
func Setup(prefix string, defaultLevel logging.Level) *logging.Logger {
	color.NoColor = false
	backend := logging.NewLogBackend(os.Stderr, prefix, 0)
	format := logging.MustStringFormatter(
		fmt.Sprintf(`%%{color}%s[%s] %%{time:15:04:05.000} %%{level:.6s} ▶ %%{message}%%{color:reset}`, prefix, RunID),
	)
	formatted := logging.NewBackendFormatter(backend, format)

	leveled := logging.AddModuleLevel(formatted)
	switch os.Getenv("VCTUNNEL_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, prefix)
	case "ERROR":
		leveled.SetLevel(logging.ERROR, prefix)
	case "WARNING":
		leveled.SetLevel(logging.WARNING, prefix)
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, prefix)
	case "INFO":
		leveled.SetLevel(logging.INFO, prefix)
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, prefix)
	default:
		leveled.SetLevel(defaultLevel, prefix)
	}

	logging.SetBackend(leveled)
	Log = logging.MustGetLogger(prefix)
	return Log
}
