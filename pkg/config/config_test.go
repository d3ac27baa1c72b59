package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	check bool
}

func (s *sample) Validate() error {
	s.check = true
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "canvas")
	path := writeFile(t, "name: ${SAMPLE_NAME}\nport: 80\n")

	var got sample
	if err := Load(path, &got); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != "canvas" || got.Port != 80 {
		t.Errorf("got %+v", got)
	}
	if !got.check {
		t.Error("Validate was not called")
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeFile(t, "name: x\nprot: 80\n")
	var got sample
	if err := Load(path, &got); err == nil {
		t.Fatal("misspelled key should fail")
	}
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeFile(t, "name: x\n")
	var got sample
	err := Load(path, &got)
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, "")
	got := sample{Port: 8080}
	if err := Load(path, &got); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Port != 8080 {
		t.Errorf("port = %d, want default 8080", got.Port)
	}
}

func TestLoadOptional(t *testing.T) {
	got := sample{Port: 8080}
	if err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &got); err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if !got.check {
		t.Error("defaults were not validated")
	}

	bad := sample{}
	if err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &bad); err == nil {
		t.Error("invalid defaults should fail")
	}

	path := writeFile(t, "port: 9090\n")
	if err := LoadOptional(path, &got); err != nil || got.Port != 9090 {
		t.Errorf("port = %d, err = %v", got.Port, err)
	}
}
