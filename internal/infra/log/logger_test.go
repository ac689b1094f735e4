package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod", "syncworker")

	logger.Info().Msg("запуск")

	if !strings.Contains(buf.String(), `"service":"syncworker"`) {
		t.Fatalf("ожидали метку сервиса в записи, получили %q", buf.String())
	}
}

func TestNewLoggerHidesDebugOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod", "api")

	logger.Debug().Msg("скрыто")

	if buf.Len() != 0 {
		t.Fatalf("debug-записи не должны попадать в прод-лог, получили %q", buf.String())
	}
}

func TestNewLoggerEnablesDebugInDev(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "dev", "api")

	logger.Debug().Msg("видно")

	if buf.Len() == 0 {
		t.Fatalf("в dev-окружении debug-записи должны писаться")
	}
}
