package unittest

import (
	"flag"
	"io"
	"os"

	"github.com/rs/zerolog"
)

var verbose = flag.Bool("vv", false, "print debugging logs")

// Logger returns a logger for tests, discarding everything unless the -vv
// flag is set.
func Logger() zerolog.Logger {
	writer := io.Discard
	if *verbose {
		writer = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
		})
	}

	return zerolog.New(writer).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
