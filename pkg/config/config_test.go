package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/poltergeist/polterpack/pkg/config"
)

func TestLoadConfig_JSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "polterpack.config.json")

	testConfig := map[string]interface{}{
		"bundler": "webpack",
		"dest":    "out",
		"webpack": map[string]interface{}{"node": "/usr/local/bin/node", "exitOnError": true},
	}
	data, _ := json.Marshal(testConfig)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.NewManager().LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Bundler != "webpack" || cfg.Dest != "out" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Webpack.Node != "/usr/local/bin/node" || !cfg.Webpack.ExitOnError {
		t.Errorf("unexpected webpack settings %+v", cfg.Webpack)
	}
	if cfg.Src != "src" || cfg.Logging.Level != "info" {
		t.Errorf("expected defaults kept, got src=%q level=%q", cfg.Src, cfg.Logging.Level)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "polterpack.config.yaml")

	testConfig := map[string]interface{}{
		"bundler": "rollup",
		"nollup":  true,
		"src":     "app",
		"logging": map[string]interface{}{"level": "debug", "file": "polterpack.log"},
		"notifications": map[string]interface{}{
			"enabled": false,
		},
	}
	data, _ := yaml.Marshal(testConfig)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.NewManager().LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Nollup || cfg.Src != "app" || cfg.Logging.File != "polterpack.log" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.NotificationsEnabled() {
		t.Error("expected notifications disabled")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"defaults", *config.Default(), false},
		{"rollup", config.Config{Bundler: "rollup"}, false},
		{"unknown bundler", config.Config{Bundler: "parcel"}, true},
		{"bad level", config.Config{Logging: config.LoggingConfig{Level: "loud"}}, true},
		{"nollup with webpack", config.Config{Bundler: "webpack", Nollup: true}, true},
	}

	m := config.NewManager()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := m.ValidateConfig(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "polterpack.config.json")
	if err := os.WriteFile(configPath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := config.NewManager().LoadConfig(configPath); err == nil {
		t.Error("expected parse error")
	}
	if _, err := config.NewManager().LoadConfig(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestFindConfig(t *testing.T) {
	tmpDir := t.TempDir()
	m := config.NewManager()

	if got := m.FindConfig(tmpDir); got != "" {
		t.Errorf("expected no config, got %s", got)
	}

	for _, name := range []string{"polterpack.config.json", "polterpack.config.yml"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if got := m.FindConfig(tmpDir); filepath.Base(got) != "polterpack.config.yml" {
		t.Errorf("expected YAML to win, got %s", got)
	}
}

func TestResolveDest(t *testing.T) {
	tests := []struct {
		cfg  config.Config
		want string
	}{
		{config.Config{}, filepath.Join("__sapper__", "build")},
		{config.Config{Dev: true}, filepath.Join("__sapper__", "dev")},
		{config.Config{Dev: true, Dest: "out"}, "out"},
	}

	for _, tt := range tests {
		if got := tt.cfg.ResolveDest(); got != tt.want {
			t.Errorf("ResolveDest() = %s, want %s", got, tt.want)
		}
	}
}
