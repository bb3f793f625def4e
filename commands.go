package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/engine"
	"tereborace.com/fenix/internal/orchestrator"
	"tereborace.com/fenix/internal/sheet"
	"tereborace.com/fenix/internal/skills"
)

// ==== comandos ====

func webCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Panel web",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if addr == "" {
				addr = a.cfg.Web.Addr
			}
			srv, err := newServer(a)
			if err != nil {
				return err
			}
			a.log.Info().Str("addr", addr).Msg("web UI listening")
			hs := &http.Server{Addr: addr, Handler: srv.routes(), ReadHeaderTimeout: 10 * time.Second}
			return hs.ListenAndServe()
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "enderezo para o modo web (por defecto web.addr)")
	return cmd
}

func tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Panel de terminal",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			p := tea.NewProgram(initialTUI(cmd.Context(), a), tea.WithAltScreen())
			_, err := p.Run()
			return err
		}),
	}
}

type prefsFlags struct {
	horizon, month, year int
}

func (pf *prefsFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&pf.horizon, "horizonte", 0, "días de horizonte (1-60)")
	cmd.Flags().IntVar(&pf.month, "mes", 0, "mes (1-12)")
	cmd.Flags().IntVar(&pf.year, "anio", 0, "año")
}

func (pf prefsFlags) prefs(a *app) orchestrator.Prefs {
	p := a.prefs()
	if pf.horizon > 0 {
		p.HorizonDays = pf.horizon
	}
	p.Month, p.Year = pf.month, pf.year
	return p
}

func askCmd() *cobra.Command {
	var pf prefsFlags
	var summary, asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <pregunta>",
		Short: "Responde unha pregunta sobre a planilla",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			snap, err := a.snapshot(cmd.Context(), false)
			if err != nil {
				return err
			}
			ans := a.orch.Ask(cmd.Context(), snap, strings.Join(args, " "), pf.prefs(a))
			var sum string
			if summary && ans.Err == nil {
				out := a.orch.Gen.Summarize(cmd.Context(), ans.Question, ans.Table)
				sum = out.Value
				if !out.OK() {
					ans.Diagnostics = append(ans.Diagnostics, out.Diagnostic)
				}
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(toAPIAnswer(ans, sum)); err != nil {
					return err
				}
				return ans.Err
			}
			printAnswer(cmd.OutOrStdout(), ans, sum)
			return ans.Err
		}),
	}
	pf.bind(cmd)
	cmd.Flags().BoolVar(&summary, "resumen", false, "pedir un resumen ao modelo")
	cmd.Flags().BoolVar(&asJSON, "json", false, "saída JSON")
	return cmd
}

func skillCmd() *cobra.Command {
	var pf prefsFlags
	var p skills.Params
	names := make([]string, len(skills.Catalog))
	for i, s := range skills.Catalog {
		names[i] = s.Metric
	}
	cmd := &cobra.Command{
		Use:       "skill <métrica>",
		Short:     "Executa unha skill do catálogo",
		Long:      "Métricas: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			snap, err := a.snapshot(cmd.Context(), false)
			if err != nil {
				return err
			}
			ans := a.runSkill(snap, args[0], p, pf.prefs(a))
			printAnswer(cmd.OutOrStdout(), ans, "")
			return ans.Err
		}),
	}
	pf.bind(cmd)
	cmd.Flags().IntVar(&p.TopN, "top", 0, "número de filas para top_en_taller")
	cmd.Flags().StringVar(&p.Proveedor, "proveedor", "", "filtro de proveedor (facturas_por_pagar)")
	cmd.Flags().StringVar(&p.Filters.Cliente, "cliente", "", "filtro de cliente")
	cmd.Flags().StringVar(&p.Filters.Marca, "marca", "", "filtro de marca")
	cmd.Flags().StringVar(&p.Filters.TipoCliente, "tipo-cliente", "", "filtro de tipo de cliente")
	cmd.Flags().StringVar(&p.Filters.Sucursal, "sucursal", "", "filtro de sucursal")
	return cmd
}

func calibrateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Amosa que columna se usa para cada campo e como se interpretan os estados",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			snap, err := a.snapshot(cmd.Context(), false)
			if err != nil {
				return err
			}
			c := a.calibration(snap)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			}
			printCalibration(cmd.OutOrStdout(), c, snap.Policy.Name)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "saída JSON")
	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Crea as vistas MB/FIN no motor SQL e lista as súas columnas",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			snap, err := a.snapshot(cmd.Context(), false)
			if err != nil {
				return err
			}
			views, err := engine.SQLite{Log: a.log}.Describe(cmd.Context(), snap.Tables, snap.Prelude.SQL)
			if err != nil {
				return err
			}
			printSchema(cmd.OutOrStdout(), views)
			return nil
		}),
	}
}

// ==== accións comúns ====

// runSkill executa directamente unha skill (botóns da UI e comando skill).
func (a *app) runSkill(snap *orchestrator.Snapshot, name string, p skills.Params, prefs orchestrator.Prefs) orchestrator.Answer {
	ans := orchestrator.Answer{ID: uuid.NewString(), Question: name, Route: orchestrator.RouteSemantic}
	s, ok := skills.Lookup(name)
	if !ok {
		ans.Route = orchestrator.RouteNone
		ans.Err = fmt.Errorf("skill desconocida %q", name)
		return ans
	}
	ans.Question, ans.Metric = s.Title, s.Metric
	if p.HorizonDays <= 0 {
		p.HorizonDays = prefs.HorizonDays
	}
	if p.TopN <= 0 {
		p.TopN = a.cfg.Defaults.TopN
	}
	if p.Month == 0 {
		p.Month = prefs.Month
	}
	if p.Year == 0 {
		p.Year = prefs.Year
	}
	t, err := snap.Skills.Run(s.Metric, p)
	if err != nil {
		ans.Route = orchestrator.RouteNone
		ans.Err = err
		return ans
	}
	t.PromoteID()
	ans.Table = t
	a.log.Info().Str("question_id", ans.ID).Str("metric", s.Metric).Int("rows", t.Len()).Msg("skill")
	return ans
}

func (a *app) calibration(snap *orchestrator.Snapshot) canon.Calibration {
	t, _ := sheet.Pick(snap.Tables, snap.Prelude.MBSource)
	name := ""
	if t != nil {
		name = t.Name
	}
	return canon.Calibrate(t, a.mapping.For(name))
}

// ==== saída de texto ====

func printAnswer(w io.Writer, ans orchestrator.Answer, summary string) {
	fmt.Fprintf(w, "Ruta: %s", ans.Route)
	if ans.Metric != "" {
		fmt.Fprintf(w, " (%s)", ans.Metric)
	}
	fmt.Fprintln(w)
	if ans.SQL != "" {
		fmt.Fprintf(w, "SQL: %s\n", ans.SQL)
	}
	if ans.Err != nil {
		fmt.Fprintf(w, "%v\n", ans.Err)
	} else {
		fmt.Fprintf(w, "%d filas\n\n%s", ans.Table.Len(), formatted(ans.Table).Markdown())
	}
	if summary != "" {
		fmt.Fprintf(w, "\nResumen:\n%s\n", summary)
	}
	for _, d := range ans.Diagnostics {
		fmt.Fprintf(w, "· %s\n", d)
	}
}

func printCalibration(w io.Writer, c canon.Calibration, policy string) {
	fmt.Fprintf(w, "Hoja: %s (%d filas) · política: %s\n\n", c.Sheet, c.Rows, policy)
	for _, r := range c.Resolutions {
		col := r.Column
		if col == "" {
			col = "(ausente)"
		}
		fmt.Fprintf(w, "%-20s %-30s %s\n", r.Field, col, r.Source)
	}
	fmt.Fprintln(w, "\nEstado servicio:")
	for _, v := range c.Estados {
		fmt.Fprintf(w, "  %-28q %5d  %s\n", v.Value, v.Count, v.Class)
	}
	fmt.Fprintln(w, "\nFacturado:")
	for _, v := range c.Facturado {
		fmt.Fprintf(w, "  %-28q %5d  %s\n", v.Value, v.Count, v.Class)
	}
}

func printSchema(w io.Writer, views map[string][]engine.Column) {
	for _, name := range []string{"MB", "FIN"} {
		cols, ok := views[name]
		if !ok {
			fmt.Fprintf(w, "%s: (no definida)\n", name)
			continue
		}
		fmt.Fprintf(w, "%s:\n", name)
		for _, c := range cols {
			fmt.Fprintf(w, "  %-24s %s\n", c.Name, c.Type)
		}
	}
}
