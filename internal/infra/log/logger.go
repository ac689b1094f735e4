package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger создаёт zerolog для одного из бинарников сервиса. Все три
// бинарника пишут в общий поток, поэтому каждая запись помечается именем
// сервиса. В dev-окружении вывод человекочитаемый и включён debug-уровень.
func NewLogger(appEnv, service string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, service)
}

func newLogger(out io.Writer, appEnv, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if appEnv == "dev" {
		out = zerolog.ConsoleWriter{Out: out}
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).With().Timestamp().Str("service", service).Logger().Level(level)
}
