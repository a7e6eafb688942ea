package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogType selects the output format.
type LogType string

const (
	LogTypeText     LogType = "text"
	LogTypeJSON     LogType = "json"
	LogTypeCombined LogType = "combined"
)

var stderr = struct{ io.Writer }{os.Stderr}

const sessionIDFieldName = "Session"

func init() { //nolint:gochecknoinits // init with zerolog is idiomatic
	ConfigureLogging(os.Getenv("LOG_LEVEL"), LogType(strings.ToLower(os.Getenv("LOG_TYPE"))))
}

type tTesting interface {
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Helper()
	Cleanup(f func())
}

// ConfigureTestLogging allows logs to be associated with individual tests
func ConfigureTestLogging(t tTesting) {
	oldLogger := log.Logger
	oldContextLogger := zerolog.DefaultContextLogger
	configureLogging(zerolog.DebugLevel, LogTypeText, zerolog.ConsoleTestWriter(t))
	t.Cleanup(func() {
		log.Logger = oldLogger
		zerolog.DefaultContextLogger = oldContextLogger
	})
}

// ConfigureLogging sets the global logger. Unknown levels fall back to info
// and unknown types to text.
func ConfigureLogging(level string, logType LogType) {
	configureLogging(ParseLogLevel(level), logType)
}

// ParseLogLevel maps a case-insensitive level name to a zerolog level.
func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func configureLogging(level zerolog.Level, logType LogType, loggingOptions ...func(w *zerolog.ConsoleWriter)) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(level)

	isTerminal := isatty.IsTerminal(os.Stderr.Fd())

	defaultLogging := func(w *zerolog.ConsoleWriter) {
		w.Out = stderr
		w.NoColor = !isTerminal
		w.TimeFormat = "15:04:05.999 |"
		w.PartsOrder = []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		}

		w.FormatFieldName = func(i interface{}) string {
			return fmt.Sprintf("[%s:", i)
		}

		w.FormatFieldValue = func(i interface{}) string {
			if i == nil {
				i = ""
			}
			return fmt.Sprintf("%s]", i)
		}
	}

	loggingOptions = append([]func(w *zerolog.ConsoleWriter){defaultLogging}, loggingOptions...)

	textWriter := zerolog.NewConsoleWriter(loggingOptions...)

	zerolog.CallerMarshalFunc = shortCaller

	var useLogWriter io.Writer = textWriter
	switch logType {
	case LogTypeJSON:
		useLogWriter = os.Stdout
	case LogTypeCombined:
		useLogWriter = zerolog.MultiLevelWriter(textWriter, os.Stdout)
	}

	log.Logger = zerolog.New(useLogWriter).With().Timestamp().Caller().Logger()
	// contexts without a logger of their own log through the global one
	zerolog.DefaultContextLogger = &log.Logger
}

// shortCaller keeps the last two path elements of the caller's file.
func shortCaller(_ uintptr, file string, line int) string {
	short := file

	separatorCount := 2
	countedSeparators := 0

	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			countedSeparators += 1
			if countedSeparators >= separatorCount {
				short = file[i+1:]
				break
			}
		}
	}
	return short + ":" + strconv.Itoa(line)
}

// ContextWithSessionLogger returns a context whose logger tags every entry
// with the (shortened) client session id.
func ContextWithSessionLogger(ctx context.Context, sessionID string) context.Context {
	if len(sessionID) > 8 { //nolint:gomnd
		sessionID = sessionID[:8]
	}
	l := log.With().Str(sessionIDFieldName, sessionID).Logger()
	return l.WithContext(ctx)
}
