package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var tracer = false
var maps = false
var target = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if flag {
		return makeLogger(logrus.DebugLevel, fields)
	}
	return makeLogger(logrus.ErrorLevel, fields)
}

// Tracer returns true if the tracer control loop should log.
func Tracer() bool {
	return tracer
}

// TracerLogger returns a logger for the tracer control loop.
func TracerLogger() Logger {
	return makeFlaggableLogger(tracer, Fields{"layer": "tracer"})
}

// Maps returns true if memory map scans and address translations should be
// logged.
func Maps() bool {
	return maps
}

// MapsLogger returns a logger for the address translator.
func MapsLogger() Logger {
	return makeFlaggableLogger(maps, Fields{"layer": "maps"})
}

// Target returns true if the target runner should log.
func Target() bool {
	return target
}

// TargetLogger returns a logger for the target runner. The target shares
// the tracer's standard error, so its entries are tagged with the pid.
func TargetLogger() Logger {
	return makeFlaggableLogger(target, Fields{"layer": "target", "pid": os.Getpid()})
}

// WriteError writes an error to the log output regardless of the
// components that were enabled.
func WriteError(msg string) {
	if logOut != nil {
		fmt.Fprintln(logOut, msg)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets logging flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "logpoint-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "tracer"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "tracer":
			tracer = true
		case "maps":
			maps = true
		case "target":
			target = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'logpoint help log' for usage.\n", logcmd)
		}
	}
	return nil
}

// Flags returns the value of --log-output that reproduces the current
// logging configuration, for handing down to the target runner.
func Flags() string {
	var v []string
	if tracer {
		v = append(v, "tracer")
	}
	if maps {
		v = append(v, "maps")
	}
	if target {
		v = append(v, "target")
	}
	return strings.Join(v, ",")
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
		logOut = nil
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
}

var textFormatterInstance = &textFormatter{}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *strings.Builder = &strings.Builder{}

	fmt.Fprintf(b, "%s %s ", entry.Time.Format("2006-01-02T15:04:05Z07:00"), entry.Level.String())
	for k, v := range entry.Data {
		fmt.Fprintf(b, "%s=%v ", k, v)
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
