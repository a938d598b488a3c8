package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Economy.InformationPrice != 100 || cfg.Economy.MoneyPerCoin != 10 {
		t.Fatalf("unexpected economy defaults: %+v", cfg.Economy)
	}
	if cfg.Evidence.MaxBytes != 5*1024*1024 {
		t.Fatalf("max bytes = %d", cfg.Evidence.MaxBytes)
	}
	if !cfg.Missions.Description.Contains(3) || cfg.Missions.Description.Contains(51) {
		t.Fatalf("description bounds wrong: %+v", cfg.Missions.Description)
	}
}

func TestFromYAMLOverridesAndKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("economy:\n  information_price: 250\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Economy.InformationPrice != 250 {
		t.Fatalf("price = %d", cfg.Economy.InformationPrice)
	}
	if cfg.Economy.MoneyPerCoin != 10 {
		t.Fatalf("money per coin lost default: %d", cfg.Economy.MoneyPerCoin)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"price":   "economy:\n  information_price: 0\n",
		"bounds":  "missions:\n  details:\n    min: 10\n    max: 5\n",
		"types":   "evidence:\n  accepted_types: [jpeg]\n",
		"webhook": "notifications:\n  webhook_url: ftp://example\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestAcceptsEvidence(t *testing.T) {
	cfg := Default()
	if !cfg.AcceptsEvidence("image/PNG") || !cfg.AcceptsEvidence("image/jpeg; charset=binary") {
		t.Fatalf("expected png/jpeg accepted")
	}
	if cfg.AcceptsEvidence("application/pdf") {
		t.Fatalf("pdf should be rejected")
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "gl init") {
		t.Fatalf("expected missing config error, got %v", err)
	}
	if cfg, err := LoadOptional(dir); err != nil || cfg != nil {
		t.Fatalf("LoadOptional on empty workspace = %v, %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "guildline.yml"), []byte(GenerateDefault("night-hands")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Guild.Name != "night-hands" {
		t.Fatalf("guild name = %q", cfg.Guild.Name)
	}
}
