package config

import (
	"os"
	"path/filepath"
	"testing"
)

type sampleConfig struct {
	Name    string `split_words:"true" default:"fallback"`
	MaxStep int    `split_words:"true" default:"25"`
}

func TestEnvKey(t *testing.T) {
	t.Parallel()

	if got := envKey("app.max_steps"); got != "APP_MAX_STEPS" {
		t.Fatalf("envKey() = %q", got)
	}
}

func TestExportEnvironmentKeepsProcessValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	body := "CFGTEST_NAME=from-file\nCFGTEST_MAX_STEP=7\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("CFGTEST_NAME", "from-process")
	if err := exportEnvironment(path); err != nil {
		t.Fatalf("exportEnvironment() error = %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CFGTEST_MAX_STEP") })

	conf, err := New[sampleConfig]("CFGTEST")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Name != "from-process" {
		t.Fatalf("Name = %q, want process value", conf.Name)
	}
	if conf.MaxStep != 7 {
		t.Fatalf("MaxStep = %d, want 7 from file", conf.MaxStep)
	}
}

func TestExportEnvironmentIfExistsMissing(t *testing.T) {
	t.Parallel()

	if err := exportEnvironmentIfExists(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("exportEnvironmentIfExists() error = %v", err)
	}
}
