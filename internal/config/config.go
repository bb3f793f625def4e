// Package config carga a configuración de Fénix: valores por defecto,
// ficheiro YAML, variables FENIX_* e as variables de entorno habituais
// (OPENAI_API_KEY, SHEET_ID, credenciais de Google).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"tereborace.com/fenix/internal/canon"
)

// ErrInvalid: a configuración non é válida.
var ErrInvalid = errors.New("config inválida")

type Config struct {
	Log          LogConfig          `koanf:"log"`
	Sheet        SheetConfig        `koanf:"sheet"`
	Cache        CacheConfig        `koanf:"cache"`
	LLM          LLMConfig          `koanf:"llm"`
	SQL          SQLConfig          `koanf:"sql"`
	Policy       PolicyConfig       `koanf:"policy"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Semantic     SemanticConfig     `koanf:"semantic"`
	Web          WebConfig          `koanf:"web"`
	Defaults     DefaultsConfig     `koanf:"defaults"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // console, json
}

type SheetConfig struct {
	Source      string   `koanf:"source"` // google, xlsx, csv
	ID          string   `koanf:"id"`
	Path        string   `koanf:"path"`        // xlsx ou directorio csv
	Credentials string   `koanf:"credentials"` // JSON ou ruta
	Allowed     []string `koanf:"allowed"`
	Mapping     string   `koanf:"mapping"` // YAML folla → campo → cabeceira
}

type CacheConfig struct {
	Backend       string        `koanf:"backend"` // memory, redis, none
	TTL           time.Duration `koanf:"ttl"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	Prefix        string        `koanf:"prefix"`
}

type LLMConfig struct {
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	Temperature float64       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
}

type SQLConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	Repair  bool          `koanf:"repair"`
}

type PolicyConfig struct {
	Invoicing string `koanf:"invoicing"` // flag_strict, evidence_based
}

type OrchestratorConfig struct {
	TrustEmptySkill bool `koanf:"trust_empty_skill"`
}

type SemanticConfig struct {
	Catalog string `koanf:"catalog"` // YAML con sinónimos extra por métrica
}

type WebConfig struct {
	Addr string `koanf:"addr"`
}

type DefaultsConfig struct {
	HorizonDays int `koanf:"horizon_days"`
	TopN        int `koanf:"top_n"`
}

func defaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "console")

	k.Set("sheet.source", "google")
	k.Set("sheet.allowed", []string{"MODELO_BOT", "FINANZAS"})

	k.Set("cache.backend", "memory")
	k.Set("cache.ttl", "600s")
	k.Set("cache.redis_addr", "localhost:6379")
	k.Set("cache.prefix", "fenix:")

	k.Set("llm.model", "gpt-4o-mini")
	k.Set("llm.temperature", 0.1)
	k.Set("llm.timeout", "30s")

	k.Set("sql.timeout", "10s")
	k.Set("sql.repair", true)

	k.Set("policy.invoicing", canon.FlagStrict.Name)
	k.Set("orchestrator.trust_empty_skill", false)

	k.Set("web.addr", "127.0.0.1:8080")

	k.Set("defaults.horizon_days", 7)
	k.Set("defaults.top_n", 10)
}

// Variables de entorno habituais, por orde de precedencia crecente.
var wellKnown = []struct{ env, key string }{
	{"GOOGLE_APPLICATION_CREDENTIALS", "sheet.credentials"},
	{"GOOGLE_SERVICE_ACCOUNT", "sheet.credentials"},
	{"SHEET_ID", "sheet.id"},
	{"OPENAI_MODEL", "llm.model"},
	{"OPENAI_API_KEY", "llm.api_key"},
	{"REDIS_ADDR", "cache.redis_addr"},
}

// LoadDotEnv carga ficheiros .env sen sobrescribir o entorno. Os ficheiros
// que non existen ignóranse.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("dotenv %s: %w", f, err)
		}
	}
	return nil
}

// Load le a configuración. path pode ir baleiro.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	defaults(k)

	// 1. ficheiro
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	// 2. FENIX_LLM_MODEL -> llm.model, FENIX_ORCHESTRATOR_TRUST_EMPTY_SKILL -> orchestrator.trust_empty_skill
	if err := k.Load(env.Provider("FENIX_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "FENIX_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	// 3. entorno habitual
	for _, w := range wellKnown {
		if v, ok := os.LookupEnv(w.env); ok && strings.TrimSpace(v) != "" {
			k.Set(w.key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.Sheet.Allowed = splitList(cfg.Sheet.Allowed)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList acepta tamén "A,B" (desde variables de entorno).
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate comproba os enums e os rangos.
func (c *Config) Validate() error {
	var errs []error
	switch c.Sheet.Source {
	case "google", "xlsx", "csv":
	default:
		errs = append(errs, fmt.Errorf("sheet.source %q", c.Sheet.Source))
	}
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q", c.Cache.Backend))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q", c.Log.Format))
	}
	if _, err := canon.PolicyByName(c.Policy.Invoicing); err != nil {
		errs = append(errs, err)
	}
	if c.Defaults.HorizonDays < 1 || c.Defaults.HorizonDays > 60 {
		errs = append(errs, fmt.Errorf("defaults.horizon_days %d fuera de 1..60", c.Defaults.HorizonDays))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// InvoicingPolicy devolve a política configurada.
func (c *Config) InvoicingPolicy() canon.InvoicingPolicy {
	p, err := canon.PolicyByName(c.Policy.Invoicing)
	if err != nil {
		return canon.FlagStrict
	}
	return p
}
