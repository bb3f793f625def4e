package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tereborace.com/fenix/internal/orchestrator"
	"tereborace.com/fenix/internal/result"
	"tereborace.com/fenix/internal/skills"
)

// ==== Modo TUI (Bubble Tea) ====

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)

type tuiModel struct {
	ctx     context.Context
	app     *app
	list    list.Model
	input   textinput.Model
	focus   int // 0=list, 1=input
	prefs   orchestrator.Prefs
	snap    *orchestrator.Snapshot
	ans     *orchestrator.Answer
	page    int
	perPage int
	chart   bool
	busy    bool
	status  string
	width   int
}

type skillItem struct{ skill skills.Skill }

func (i skillItem) FilterValue() string {
	return i.skill.Title + " " + strings.Join(i.skill.Synonyms, " ")
}
func (i skillItem) Title() string       { return i.skill.Title }
func (i skillItem) Description() string { return i.skill.Metric }

type snapMsg struct {
	snap *orchestrator.Snapshot
	err  error
}

type answerMsg orchestrator.Answer

func initialTUI(ctx context.Context, a *app) tuiModel {
	cat := a.orch.Catalog
	if cat == nil {
		cat = skills.Catalog
	}
	items := make([]list.Item, len(cat))
	for i, s := range cat {
		items[i] = skillItem{s}
	}
	l := list.New(items, list.NewDefaultDelegate(), 30, 20)
	l.Title = "Reportes"
	in := textinput.New()
	in.Placeholder = "pregunta... (/ para focar)"
	in.CharLimit = 300
	return tuiModel{ctx: ctx, app: a, list: l, input: in, prefs: a.prefs(), page: 1, perPage: 15, width: 120}
}

func (m tuiModel) loadSnapshot(force bool) tea.Cmd {
	return func() tea.Msg {
		s, err := m.app.snapshot(m.ctx, force)
		return snapMsg{s, err}
	}
}

func (m tuiModel) Init() tea.Cmd { return m.loadSnapshot(false) }

func (m tuiModel) ask(q string) tea.Cmd {
	snap, prefs := m.snap, m.prefs
	return func() tea.Msg {
		return answerMsg(m.app.orch.Ask(m.ctx, snap, q, prefs))
	}
}

func (m tuiModel) runSkill(metric string) tea.Cmd {
	snap, prefs := m.snap, m.prefs.WithDefaults(m.snap.Today)
	return func() tea.Msg {
		return answerMsg(m.app.runSkill(snap, metric, skills.Params{}, prefs))
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapMsg:
		m.busy = false
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
			return m, nil
		}
		m.snap = msg.snap
		m.status = fmt.Sprintf("Planilla cargada %s", m.snap.LoadedAt.Format("15:04"))
		return m, nil
	case answerMsg:
		a := orchestrator.Answer(msg)
		m.busy, m.ans, m.page = false, &a, 1
		if a.Err != nil {
			m.status = errorStyle.Render(a.Err.Error())
		} else {
			m.status = fmt.Sprintf("%d filas · ruta %s", a.Table.Len(), a.Route)
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.list.SetSize(msg.Width/4, msg.Height-4)
		return m, nil
	case tea.KeyMsg:
		if m.focus == 1 {
			switch msg.String() {
			case "esc":
				m.focus = 0
				m.input.Blur()
				return m, nil
			case "enter":
				q := strings.TrimSpace(m.input.Value())
				if q == "" || m.snap == nil || m.busy {
					return m, nil
				}
				m.busy, m.status = true, "Pensando..."
				m.focus = 0
				m.input.Blur()
				return m, m.ask(q)
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "Q":
			return m, tea.Quit
		case "/":
			m.focus = 1
			m.input.Focus()
			return m, textinput.Blink
		case "enter":
			if it, ok := m.list.SelectedItem().(skillItem); ok && m.snap != nil && !m.busy {
				m.busy, m.status = true, "Ejecutando "+it.skill.Metric
				return m, m.runSkill(it.skill.Metric)
			}
		case "R":
			m.busy, m.status = true, "Recargando..."
			return m, m.loadSnapshot(true)
		case "+":
			m.prefs.HorizonDays = min(m.prefs.HorizonDays+1, 60)
		case "-":
			m.prefs.HorizonDays = max(m.prefs.HorizonDays-1, 1)
		case "N":
			if m.ans != nil && m.page*m.perPage < m.ans.Table.Len() {
				m.page++
			}
		case "P":
			if m.page > 1 {
				m.page--
			}
		case "C":
			m.chart = !m.chart
		case "E":
			m.status = m.export("csv")
		case "X":
			m.status = m.export("xlsx")
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m tuiModel) View() string {
	left := lipgloss.NewStyle().Width(m.width / 4).Render(m.list.View())
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render("Fénix"))
	fmt.Fprintf(&b, "Pregunta [/]: %s\n", m.input.View())
	fmt.Fprintf(&b, "Horizonte [+/-]: %d días\n\n", m.prefs.HorizonDays)
	if m.ans != nil {
		fmt.Fprintf(&b, "%s\n", headerStyle.Render(m.ans.Question))
		if m.ans.SQL != "" {
			fmt.Fprintf(&b, "%s\n", mutedStyle.Render("SQL: "+m.ans.SQL))
		}
		if m.ans.Err == nil {
			fmt.Fprintf(&b, "%s\n\n", m.renderRows())
			if m.chart {
				fmt.Fprintf(&b, "%s\n", m.renderHistogram())
			}
		}
		for _, d := range m.ans.Diagnostics {
			fmt.Fprintf(&b, "%s\n", mutedStyle.Render("· "+d))
		}
	}
	fmt.Fprintf(&b, "\n[enter] reporte  [N/P] páx  [C] gráfica  [E] CSV  [X] XLSX  [R] recargar  [Q] salir\n")
	fmt.Fprintf(&b, "%s\n", mutedStyle.Render(m.app.orch.Gen.Status(m.diagnostics()).String()))
	fmt.Fprintf(&b, "%s", m.status)
	right := lipgloss.NewStyle().Width(m.width - m.width/4 - 2).PaddingLeft(2).Render(b.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m tuiModel) diagnostics() []string {
	if m.ans == nil {
		return nil
	}
	return m.ans.Diagnostics
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n < 1 {
		return ""
	}
	return string([]rune(s)[:n-1]) + "…"
}

func (m tuiModel) renderRows() string {
	t := m.ans.Table
	if len(t.Columns) == 0 {
		return "(sin columnas)"
	}
	if t.Empty() {
		return "Sin resultados."
	}
	from := (m.page - 1) * m.perPage
	to := min(from+m.perPage, t.Len())
	page := formatted(&result.Table{Columns: t.Columns, Rows: t.Rows[from:to]})

	// ancho por columna
	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = min(utf8.RuneCountInString(c), 24)
	}
	for _, r := range page.Rows {
		for i, c := range r {
			widths[i] = max(widths[i], min(utf8.RuneCountInString(result.Text(c)), 24))
		}
	}
	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			c = clip(c, widths[i])
			parts[i] = c + strings.Repeat(" ", widths[i]-utf8.RuneCountInString(c))
		}
		return strings.Join(parts, " │ ")
	}
	head := line(t.Columns)
	lines := []string{headerStyle.Render(head), strings.Repeat("─", utf8.RuneCountInString(head))}
	for _, r := range page.Rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = result.Text(c)
		}
		lines = append(lines, line(cells))
	}
	pages := (t.Len() + m.perPage - 1) / m.perPage
	lines = append(lines, mutedStyle.Render(fmt.Sprintf("%d filas · páx %d/%d", t.Len(), m.page, pages)))
	return strings.Join(lines, "\n")
}

func (m tuiModel) renderHistogram() string {
	c, ok := chartOf(m.ans.Table, 15)
	if !ok {
		return "(sin datos)"
	}
	maxv := 0.0
	for _, v := range c.Values {
		maxv = max(maxv, v)
	}
	maxBar := 40
	var b strings.Builder
	what := "filas"
	if c.ValueCol != "" {
		what = c.ValueCol
	}
	fmt.Fprintf(&b, "%s por %s\n", what, c.LabelCol)
	for i, lab := range c.Labels {
		n := 0
		if maxv > 0 {
			n = int(c.Values[i] / maxv * float64(maxBar))
		}
		val := formatCell(c.ValueCol, c.Values[i])
		fmt.Fprintf(&b, "%-18s | %-*s %s\n", clip(lab, 18), maxBar, strings.Repeat("█", n), val)
	}
	return b.String()
}

// export escribe a resposta actual nun ficheiro do directorio de traballo.
func (m tuiModel) export(format string) string {
	fn, err := m.exportFile(format)
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	return "Exportado " + fn
}

func (m tuiModel) exportFile(format string) (string, error) {
	if m.ans == nil || m.ans.Table == nil {
		return "", errors.New("sin resultados para exportar")
	}
	base := m.ans.Metric
	if base == "" {
		base = "fenix"
	}
	fn := fmt.Sprintf("%s_export_%d.%s", safeFile(base), time.Now().Unix(), format)
	f, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	if format == "xlsx" {
		err = writeXLSX(f, m.ans.Table)
	} else {
		err = writeCSV(f, m.ans.Table)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return fn, err
}
