package config

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `
version: 1
discord:
  token: ${PINBOARD_TEST_TOKEN}
  home_guild_id: "123"
`

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PINBOARD_TEST_TOKEN", "secret-token")
	path := writeConfig(t, "config.yaml", minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.Token != "secret-token" {
		t.Errorf("token = %q, want expanded env value", cfg.Discord.Token)
	}
	if cfg.Discord.CommandPrefix != "!" {
		t.Errorf("command prefix = %q", cfg.Discord.CommandPrefix)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "pinboard.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Pinboards.PromptTimeout != 60*time.Second || cfg.Pinboards.MaxPageSize != 2000 {
		t.Errorf("pinboards = %+v", cfg.Pinboards)
	}
	if cfg.Pinboards.AuditSchedule != "@every 10m" || !cfg.Pinboards.AuditEnabled() {
		t.Errorf("audit schedule = %q", cfg.Pinboards.AuditSchedule)
	}
	if cfg.Pinboards.WarmCache == nil || !*cfg.Pinboards.WarmCache {
		t.Error("warm cache should default to true")
	}
	if cfg.Metrics.Listen != ":9090" || !*cfg.Metrics.Enabled {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
version: 1
discord:
  token: t
  home_guild_id: "123"
pinboards:
  prompt_timeout: 90s
  audit_schedule: "off"
database:
  driver: postgres
  dsn: postgres://pinboard@localhost/pinboard
  conn_max_lifetime: 1m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pinboards.PromptTimeout != 90*time.Second {
		t.Errorf("prompt timeout = %v", cfg.Pinboards.PromptTimeout)
	}
	if cfg.Database.ConnMaxLifetime != time.Minute {
		t.Errorf("conn max lifetime = %v", cfg.Database.ConnMaxLifetime)
	}
	if cfg.Pinboards.AuditEnabled() {
		t.Error("audit should be disabled")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", minimalConfig+`
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRequiresVersion(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
discord:
  token: t
  home_guild_id: "123"
`)

	_, err := Load(path)
	var ve *VersionError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *VersionError, got %v", err)
	}
	if ve.Version != 0 || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("version error = %v", err)
	}
	if err := ValidateVersion(CurrentVersion + 1); err == nil || !strings.Contains(err.Error(), "newer") {
		t.Fatalf("newer version error = %v", err)
	}
}

func TestLoadCollectsValidationIssues(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
version: 1
database:
  driver: mysql
pinboards:
  default_migration_mode: sometimes
  audit_schedule: "every tuesday"
logging:
  level: loud
`)

	_, err := Load(path)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	for _, want := range []string{
		"discord.token",
		"discord.home_guild_id",
		"database.driver",
		"database.dsn",
		"pinboards.default_migration_mode",
		"pinboards.audit_schedule",
		"logging.level",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadJSON5WithInclude(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), []byte("discord:\n  token: from-include\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.json5")
	contents := `{
  // comments are allowed
  "$include": "secrets.yaml",
  version: 1,
  discord: { home_guild_id: "123" },
}`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.Token != "from-include" || cfg.Discord.HomeGuildID != "123" {
		t.Errorf("discord = %+v", cfg.Discord)
	}
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(a, []byte("$include: b.yaml\nversion: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("$include: a.yaml\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(a)
	if err == nil || !strings.Contains(err.Error(), "include cycle") {
		t.Fatalf("Load() error = %v, want include cycle", err)
	}
}

func TestLoadIncludingFileWins(t *testing.T) {
	dir := t.TempDir()
	base := "version: 1\ndiscord:\n  token: base\n  home_guild_id: \"1\"\n  command_prefix: \"?\"\n"
	if err := os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeConfigIn(t, dir, "config.yaml", "$include: [base.yaml]\ndiscord:\n  home_guild_id: \"2\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.HomeGuildID != "2" || cfg.Discord.Token != "base" || cfg.Discord.CommandPrefix != "?" {
		t.Errorf("discord = %+v", cfg.Discord)
	}
}

func TestJSONSchemaUsesYAMLNames(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	if !json.Valid(data) {
		t.Fatal("schema is not valid JSON")
	}
	for _, field := range []string{"home_guild_id", "default_migration_mode", "audit_schedule"} {
		if !strings.Contains(string(data), field) {
			t.Errorf("schema missing %s", field)
		}
	}
}

func TestValidateSchema(t *testing.T) {
	valid := writeConfig(t, "config.yaml", `
version: 1
discord:
  token: ${PINBOARD_UNSET_TOKEN}
  home_guild_id: "123"
pinboards:
  prompt_timeout: 90s
  warm_cache: false
`)
	raw, err := LoadRaw(valid)
	if err != nil {
		t.Fatalf("LoadRaw() error = %v", err)
	}
	if err := ValidateSchema(raw); err != nil {
		t.Fatalf("ValidateSchema() error = %v", err)
	}

	invalid := writeConfig(t, "config.yaml", `
version: 1
discord:
  home_guild_id: "123"
pinboards:
  prompt_timeout: soon
  max_page_size: "big"
`)
	raw, err = LoadRaw(invalid)
	if err != nil {
		t.Fatalf("LoadRaw() error = %v", err)
	}
	if err := ValidateSchema(raw); err == nil {
		t.Fatal("expected schema violation for bad duration and page size")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "example-token")
	path := filepath.Join("..", "..", "pinboard.example.yaml")

	raw, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("LoadRaw() error = %v", err)
	}
	if err := ValidateSchema(raw); err != nil {
		t.Fatalf("ValidateSchema() error = %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pinboards.DefaultMigrationMode != "manual" || !cfg.Pinboards.AuditEnabled() {
		t.Errorf("pinboards = %+v", cfg.Pinboards)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	t.Setenv("PINBOARD_TEST_TOKEN", "t")
	path := writeConfig(t, "config.yaml", minimalConfig)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(minimalConfig+"logging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Logging.Level != "debug" {
			t.Errorf("reloaded level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	return writeConfigIn(t, t.TempDir(), name, contents)
}

func writeConfigIn(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
