package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NamanBalaji/btget/internal/logger"
)

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer

	logger.SetOutput(&buf)
	defer logger.Close()

	logger.Infof("announce to %s", "http://t")
	logger.Debugf("piece %d", 3)
	logger.Warnf("slow")
	logger.Errorf("boom")

	out := buf.String()
	for _, want := range []string{"[INFO] announce to http://t", "[DEBUG] piece 3", "[WARNING] slow", "[ERROR] boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestInitLogging_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "btget.log")

	if err := logger.InitLogging(true, path); err != nil {
		t.Fatalf("InitLogging() error = %v", err)
	}

	logger.Infof("hello %d", 1)
	logger.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(b), "[INFO] hello 1") {
		t.Errorf("log file = %q", b)
	}
}

func TestDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btget.log")

	if err := logger.InitLogging(false, path); err != nil {
		t.Fatalf("InitLogging() error = %v", err)
	}
	defer logger.Close()

	logger.Errorf("dropped")

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("log file created while disabled: %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	if !strings.HasSuffix(logger.DefaultPath(), filepath.Join("btget", "btget.log")) {
		t.Errorf("DefaultPath() = %q", logger.DefaultPath())
	}
}
