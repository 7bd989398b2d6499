package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFilesKeepsProcessValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport INTAKE_DOTENV_NEW=\"from file\"\nINTAKE_DOTENV_SET=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("INTAKE_DOTENV_SET", "from-process")
	t.Cleanup(func() { _ = os.Unsetenv("INTAKE_DOTENV_NEW") })

	loadEnvFiles(filepath.Join(dir, "missing.env"), path)

	if got := os.Getenv("INTAKE_DOTENV_NEW"); got != "from file" {
		t.Fatalf("INTAKE_DOTENV_NEW = %q", got)
	}
	if got := os.Getenv("INTAKE_DOTENV_SET"); got != "from-process" {
		t.Fatalf("process value overwritten: %q", got)
	}
}
