package lib

import (
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	LogTimeFormat = "2006-01-02T15:04:05.000"
)

func consoleWriter(pretty bool) io.Writer {
	if !pretty {
		return os.Stderr
	}
	if runtime.GOOS == "windows" {
		return zerolog.ConsoleWriter{Out: colorable.NewColorableStderr(), TimeFormat: LogTimeFormat}
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false, TimeFormat: LogTimeFormat}
}

// ZeroConsoleLog logs to stderr only.
func ZeroConsoleLog(pretty bool) {
	log.Logger = zerolog.New(consoleWriter(pretty)).With().Timestamp().Logger()
}

// ZeroConsoleAndFileLog logs to stderr and appends JSON lines to filename.
// The returned closer releases the file; it is a no-op when the file could
// not be opened.
func ZeroConsoleAndFileLog(filename string, pretty bool) io.Closer {
	if filename == "" {
		ZeroConsoleLog(pretty)
		return io.NopCloser(nil)
	}

	logFile, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		ZeroConsoleLog(pretty)
		log.Error().Err(err).Str("path", filename).Msg("Error setting up log file, logging to console only")
		return io.NopCloser(nil)
	}

	mw := io.MultiWriter(logFile, consoleWriter(pretty))
	log.Logger = zerolog.New(mw).With().Timestamp().Logger()
	return logFile
}

// SetLogLevel switches the global level between debug and info.
func SetLogLevel(debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
