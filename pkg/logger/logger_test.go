package logger_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	pcontext "github.com/poltergeist/polterpack/pkg/context"
	"github.com/poltergeist/polterpack/pkg/logger"
)

func TestCreateLogger(t *testing.T) {
	log := logger.CreateLogger("", "info")
	if log == nil {
		t.Fatal("expected logger to be created")
	}
}

func TestLogger_WithBundle(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.WithBundle("client").Info("building bundle")

	output := buf.String()
	if !strings.Contains(output, "[client] building bundle") {
		t.Errorf("expected bundle prefix in log output, got %q", output)
	}
}

func TestLogger_Success(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Success("build completed")

	if !strings.Contains(buf.String(), "✅ build completed") {
		t.Error("expected success message in log output")
	}
}

func TestLogger_FieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Info("test message",
		logger.WithField("zeta", 1),
		logger.WithField("alpha", "a"),
	)

	if !strings.Contains(buf.String(), "{alpha=a, zeta=1}") {
		t.Errorf("expected sorted fields, got %q", buf.String())
	}
}

func TestLogger_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("error", &buf)

	log.Debug("should not appear")
	log.Info("should not appear")
	log.Warn("should not appear")
	log.Error("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Error("lower level logs should not appear with error level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("error level log should appear")
	}
}

func TestWithContext_AddsCycleID(t *testing.T) {
	var buf bytes.Buffer
	base := logger.CreateLoggerWithOutput("debug", &buf)

	ctx := pcontext.WithCycleID(context.Background(), "cyc_test")
	logger.WithContext(ctx, base).WithBundle("server").Debug("cycle started")

	output := buf.String()
	if !strings.Contains(output, "cycle_id=cyc_test") {
		t.Errorf("expected cycle id field, got %q", output)
	}
	if !strings.Contains(output, "[server]") {
		t.Errorf("expected bundle prefix, got %q", output)
	}
}

func TestConsoleLogger(t *testing.T) {
	var out, errOut bytes.Buffer
	c := logger.NewConsoleLogger(&out, &errOut)

	c.Info("hello")
	c.Error("bad")

	if !strings.Contains(out.String(), "hello") {
		t.Error("expected info on stdout writer")
	}
	if !strings.Contains(errOut.String(), "bad") {
		t.Error("expected error on stderr writer")
	}
}
