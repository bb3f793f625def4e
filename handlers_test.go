package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tereborace.com/fenix/internal/canon"
	"tereborace.com/fenix/internal/config"
	"tereborace.com/fenix/internal/engine"
	"tereborace.com/fenix/internal/orchestrator"
	"tereborace.com/fenix/internal/sheet"
)

var today = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type staticSource struct {
	tables map[string]*sheet.Table
	loads  int
}

func (s *staticSource) Load(context.Context, string, []string) (map[string]*sheet.Table, error) {
	s.loads++
	return s.tables, nil
}

func fixture() map[string]*sheet.Table {
	return map[string]*sheet.Table{
		"MODELO_BOT": sheet.NewTable("MODELO_BOT", [][]string{
			{"Patente", "OT", "Cliente", "Tipo Cliente", "Marca", "Estado Servicio", "Presupuesto",
				"Fecha Recepción", "Fecha Entrega", "Fecha Facturación", "Facturado", "Monto Neto"},
			{"AB1234", "100", "Pérez Ltda", "Empresa", "Toyota", "Entregado", "Aprobado",
				"01/06/2024", "10/06/2024", "", "No", "1.500.000"},
			{"", "200", "Juan Soto", "Particular", "Kia", "En Taller", "Aprobado",
				"05/06/2024", "", "", "", "300.000"},
			{"CD5678", "300", "Flota SA", "Empresa", "Toyota", "Entregado", "Aprobado",
				"2024-06-02", "11/06/2024", "12/06/2024", "Sí", "2.000.000"},
		}),
	}
}

func testApp(src sheet.Source) *app {
	cfg := &config.Config{}
	cfg.Cache.TTL = time.Minute
	cfg.Policy.Invoicing = canon.FlagStrict.Name
	cfg.Defaults.HorizonDays = 7
	cfg.Defaults.TopN = 10
	return &app{
		cfg:    cfg,
		log:    zerolog.Nop(),
		source: src,
		now:    func() time.Time { return today },
		orch: &orchestrator.Orchestrator{
			Exec: engine.SQLite{Log: zerolog.Nop()},
			Cfg:  orchestrator.Config{SQLTimeout: 5 * time.Second},
			Log:  zerolog.Nop(),
		},
	}
}

func testServer(t *testing.T) (*server, http.Handler) {
	t.Helper()
	s, err := newServer(testApp(&staticSource{tables: fixture()}))
	require.NoError(t, err)
	return s, s.routes()
}

func do(h http.Handler, method, target string, body string, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func apiAsk(t *testing.T, h http.Handler, question string) apiAnswer {
	t.Helper()
	rec := do(h, http.MethodPost, "/api/ask", `{"question": "`+question+`"}`, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out apiAnswer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	_, h := testServer(t)
	rec := do(h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fenix")
}

func TestIndexRendersSkillsAndStatus(t *testing.T) {
	_, h := testServer(t)
	rec := do(h, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "/skills/entregados_sin_factura")
	assert.Contains(t, body, "OPENAI_API_KEY presente: no")
	assert.Contains(t, body, "MODELO_BOT")
}

func TestAskForm(t *testing.T) {
	_, h := testServer(t)
	form := url.Values{"q": {"entregados sin factura"}, "horizonte": {"14"}}
	rec := do(h, http.MethodPost, "/ask", form.Encode(), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "heuristica")
	assert.Contains(t, body, "AB1234")
	assert.NotContains(t, body, "CD5678", "invoiced row filtered out")
	assert.Contains(t, body, `value="14"`)
}

func TestSkillPage(t *testing.T) {
	_, h := testServer(t)
	rec := do(h, http.MethodGet, "/skills/entregados_sin_factura", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Pérez Ltda")
	assert.Contains(t, body, "$ 1.500.000")
	assert.Contains(t, body, "10-06-2024")

	rec = do(h, http.MethodGet, "/skills/no_existe", "", "")
	assert.Contains(t, rec.Body.String(), "skill desconocida")
}

func TestAPIAsk(t *testing.T) {
	_, h := testServer(t)
	out := apiAsk(t, h, "entregados sin factura")
	assert.Equal(t, string(orchestrator.RouteFreeform), out.Route)
	require.NotNil(t, out.Table)
	require.Len(t, out.Table.Rows, 1)
	assert.Equal(t, "id", out.Table.Columns[0])
	assert.NotEmpty(t, out.ID)

	rec := do(h, http.MethodPost, "/api/ask", `{bad`, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(h, http.MethodPost, "/api/ask", `{"question": "  "}`, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCSV(t *testing.T) {
	_, h := testServer(t)
	out := apiAsk(t, h, "entregados sin factura")

	rec := do(h, http.MethodGet, "/export/csv?id="+out.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	recs, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, out.Table.Columns, recs[0])
	assert.Equal(t, "AB1234", recs[1][0])

	rec = do(h, http.MethodGet, "/export/csv?id=nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(h, http.MethodGet, "/export/pdf?id="+out.ID, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportXLSX(t *testing.T) {
	_, h := testServer(t)
	out := apiAsk(t, h, "entregados sin factura")

	rec := do(h, http.MethodGet, "/export/xlsx?id="+out.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	a1, err := f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "id", a1)
	a2, err := f.GetCellValue("Sheet1", "A2")
	require.NoError(t, err)
	assert.Equal(t, "AB1234", a2)
}

func TestAPIChartAndStatus(t *testing.T) {
	_, h := testServer(t)
	out := apiAsk(t, h, "vehiculos entregados")

	rec := do(h, http.MethodGet, "/api/chart/"+out.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var c chart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.NotEmpty(t, c.Labels)

	rec = do(h, http.MethodGet, "/api/chart/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodGet, "/api/estado", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, false, st["api_key"])
	assert.Equal(t, "MODELO_BOT", st["mb_source"])
	assert.Equal(t, canon.FlagStrict.Name, st["policy"])
}

func TestCalibrationPage(t *testing.T) {
	_, h := testServer(t)
	rec := do(h, http.MethodGet, "/calibracion", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "estado_servicio")
	assert.Contains(t, body, "Estado Servicio")

	rec = do(h, http.MethodGet, "/api/calibracion", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var c canon.Calibration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, 3, c.Rows)
}

func TestSnapshotReuseAndReload(t *testing.T) {
	src := &staticSource{tables: fixture()}
	a := testApp(src)
	ctx := context.Background()

	s1, err := a.snapshot(ctx, false)
	require.NoError(t, err)
	s2, err := a.snapshot(ctx, false)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, src.loads)

	_, err = a.snapshot(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loads)

	// o día cambia: reconstrúese
	a.now = func() time.Time { return today.Add(24 * time.Hour) }
	s3, err := a.snapshot(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, src.loads)
	assert.Equal(t, 16, s3.Today.Day())
}

func TestAnswerStoreEvicts(t *testing.T) {
	st := newAnswerStore(2)
	for _, id := range []string{"a", "b", "c"} {
		st.put(storedAnswer{Answer: orchestrator.Answer{ID: id}})
	}
	_, ok := st.get("a")
	assert.False(t, ok)
	last, ok := st.last()
	require.True(t, ok)
	assert.Equal(t, "c", last.ID)
}
