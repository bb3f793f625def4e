// main.go
// Build/run:
//
//	go run . web                         # UI web en http://127.0.0.1:8080
//	go run . tui                         # UI TUI (terminal)
//	go run . ask "entregados sin factura"
//	go run . skill facturas_por_pagar --horizonte 14
//	go run . calibrate                   # como se interpretan columnas e estados
//	go run . schema                      # vistas MB/FIN tal como as ve o motor SQL
//
// Notas:
// - Read-only: a planilla cárgase nun SQLite en memoria con PRAGMA query_only=ON.
// - Exportación: CSV e XLSX (Excel) de calquera resposta.
// - Gráficas: no modo web úsase Chart.js; no modo TUI amósase un histograma ASCII.

package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tereborace.com/fenix/internal/columns"
	"tereborace.com/fenix/internal/config"
	"tereborace.com/fenix/internal/engine"
	"tereborace.com/fenix/internal/llm"
	"tereborace.com/fenix/internal/logging"
	"tereborace.com/fenix/internal/orchestrator"
	"tereborace.com/fenix/internal/sheet"
	"tereborace.com/fenix/internal/skills"
)

//go:embed webstatic/*
var webFS embed.FS

//go:embed templates/* templates/partials/*
var tplFS embed.FS

// app xunta o que comparten a web, a TUI e os comandos.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	source  sheet.Source
	mapping columns.MappingFile
	orch    *orchestrator.Orchestrator
	now     func() time.Time
	closers []func() error

	mu   sync.Mutex
	snap *orchestrator.Snapshot
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, now: time.Now}

	src, err := sheet.NewSource(cfg.Sheet.Source, cfg.Sheet.Path, cfg.Sheet.Credentials)
	if err != nil {
		return nil, err
	}
	switch cfg.Cache.Backend {
	case "memory":
		src = &sheet.Cached{Source: src, Cache: sheet.NewMemoryCache(), TTL: cfg.Cache.TTL, Log: log}
	case "redis":
		rc, err := sheet.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.Prefix)
		if err != nil {
			// sen redis seguimos con caché en memoria
			log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis unavailable, using memory cache")
			src = &sheet.Cached{Source: src, Cache: sheet.NewMemoryCache(), TTL: cfg.Cache.TTL, Log: log}
		} else {
			a.closers = append(a.closers, rc.Close)
			src = &sheet.Cached{Source: src, Cache: rc, TTL: cfg.Cache.TTL, Log: log}
		}
	}
	a.source = src

	if cfg.Sheet.Mapping != "" {
		if a.mapping, err = columns.LoadMapping(cfg.Sheet.Mapping); err != nil {
			return nil, err
		}
	}

	catalog := skills.Catalog
	if cfg.Semantic.Catalog != "" {
		if catalog, err = skills.LoadCatalog(cfg.Semantic.Catalog); err != nil {
			return nil, err
		}
	}

	var gen *llm.Generator
	if cfg.LLM.APIKey != "" {
		c, err := llm.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLM.Temperature)
		if err != nil {
			return nil, err
		}
		gen = &llm.Generator{Completer: c, Model: cfg.LLM.Model, Log: log}
	} else {
		log.Info().Msg("OPENAI_API_KEY not set, only heuristic answers")
	}

	a.orch = &orchestrator.Orchestrator{
		Gen:     gen,
		Exec:    engine.SQLite{Log: log},
		Catalog: catalog,
		Cfg: orchestrator.Config{
			LLMTimeout:      cfg.LLM.Timeout,
			SQLTimeout:      cfg.SQL.Timeout,
			TrustEmptySkill: cfg.Orchestrator.TrustEmptySkill,
			Repair:          cfg.SQL.Repair,
		},
		Log: log,
	}
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn().Err(err).Msg("close")
		}
	}
}

// snapshot devolve a planilla cargada. Recárgase cando caduca o TTL, cando
// cambia o día ou se force.
func (a *app) snapshot(ctx context.Context, force bool) (*orchestrator.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	ttl := a.cfg.Cache.TTL
	if ttl <= 0 {
		ttl = sheet.DefaultTTL
	}
	if !force && a.snap != nil && now.Sub(a.snap.LoadedAt) < ttl && sameDay(a.snap.Today, now) {
		return a.snap, nil
	}
	tables, err := a.source.Load(ctx, a.cfg.Sheet.ID, a.cfg.Sheet.Allowed)
	if err != nil {
		if a.snap != nil {
			// mellor datos vellos que ningún
			a.log.Warn().Err(err).Msg("sheet reload failed, keeping previous snapshot")
			return a.snap, nil
		}
		return nil, err
	}
	a.snap = orchestrator.NewSnapshot(tables, orchestrator.SnapshotOptions{
		Mapping: a.mapping,
		Policy:  a.cfg.InvoicingPolicy(),
		Today:   now,
	})
	a.snap.LoadedAt = now
	a.log.Info().Strs("sheets", sheet.Names(tables)).Str("policy", a.snap.Policy.Name).Msg("snapshot built")
	return a.snap, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// prefs por defecto desde a configuración.
func (a *app) prefs() orchestrator.Prefs {
	return orchestrator.Prefs{HorizonDays: a.cfg.Defaults.HorizonDays}
}

// ==== CLI ====

var (
	cfgFile string
	envFile string
	debug   bool
)

func bootstrap(ctx context.Context) (*app, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return newApp(ctx, cfg, log)
}

// withApp arranca a app para un comando e péchaa ao rematar.
func withApp(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fenix",
		Short:         "Fénix: reportes de la planilla de servicios en lenguaje natural",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "ficheiro de configuración YAML")
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "ficheiro .env")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(webCmd(), tuiCmd(), askCmd(), skillCmd(), calibrateCmd(), schemaCmd())
	return root
}

// ==== main ====
func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, orchestrator.ErrUnanswered) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
