package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var (
	// ErrMissingCredentials: non hai credenciais de servizo configuradas.
	ErrMissingCredentials = errors.New("missing google service account credentials")
	// ErrUnreachable: a planilla non se puido ler.
	ErrUnreachable = errors.New("sheet source unreachable")
	// ErrNoAllowedSheets: ningunha folla permitida existe na planilla.
	ErrNoAllowedSheets = errors.New("no allowed sheets found")
)

// Source carga as follas permitidas dunha planilla. É de só lectura.
type Source interface {
	Load(ctx context.Context, sheetID string, allowed []string) (map[string]*Table, error)
}

// ==== Google Sheets ====

// Google le unha planilla con credenciais dunha conta de servizo.
// Credentials pode ser o JSON da conta ou a ruta a un ficheiro que o contén.
type Google struct {
	Credentials string
}

func (g Google) credentialsJSON() ([]byte, error) {
	c := strings.TrimSpace(g.Credentials)
	if c == "" {
		return nil, ErrMissingCredentials
	}
	if strings.HasPrefix(c, "{") {
		return []byte(c), nil
	}
	b, err := os.ReadFile(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}
	return b, nil
}

// Load le os valores formateados de cada folla permitida.
func (g Google) Load(ctx context.Context, sheetID string, allowed []string) (map[string]*Table, error) {
	if strings.TrimSpace(sheetID) == "" {
		return nil, fmt.Errorf("%w: empty sheet id", ErrUnreachable)
	}
	b, err := g.credentialsJSON()
	if err != nil {
		return nil, err
	}
	cfg, err := google.JWTConfigFromJSON(b, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse credentials: %v", ErrMissingCredentials, err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	meta, err := srv.Spreadsheets.Get(sheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	out := map[string]*Table{}
	for _, s := range meta.Sheets {
		if s.Properties == nil || !allowedName(s.Properties.Title, allowed) {
			continue
		}
		name := s.Properties.Title
		resp, err := srv.Spreadsheets.Values.Get(sheetID, name).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrUnreachable, name, err)
		}
		out[name] = NewTable(name, stringify(resp.Values))
	}
	if len(out) == 0 {
		return nil, ErrNoAllowedSheets
	}
	return out, nil
}

func stringify(values [][]interface{}) [][]string {
	cells := make([][]string, len(values))
	for i, row := range values {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[i][j] = fmt.Sprint(v)
			}
		}
	}
	return cells
}

// ==== XLSX ====

// XLSX le as follas dun libro local. O sheetID ignórase.
type XLSX struct {
	Path string
}

func (x XLSX) Load(ctx context.Context, _ string, allowed []string) (map[string]*Table, error) {
	f, err := excelize.OpenFile(x.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer f.Close()

	out := map[string]*Table{}
	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !allowedName(name, allowed) {
			continue
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrUnreachable, name, err)
		}
		out[name] = NewTable(name, rows)
	}
	if len(out) == 0 {
		return nil, ErrNoAllowedSheets
	}
	return out, nil
}

// ==== CSV ====

// CSVDir le un directorio onde cada NOME.csv é unha folla. O sheetID ignórase.
type CSVDir struct {
	Dir string
}

func (c CSVDir) Load(ctx context.Context, _ string, allowed []string) (map[string]*Table, error) {
	files, err := filepath.Glob(filepath.Join(c.Dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	out := map[string]*Table{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if !allowedName(name, allowed) {
			continue
		}
		cells, err := readCSV(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, name, err)
		}
		out[name] = NewTable(name, cells)
	}
	if len(out) == 0 {
		return nil, ErrNoAllowedSheets
	}
	return out, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// NewSource escolle a fonte segundo o tipo configurado.
func NewSource(kind, path, credentials string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "google", "gsheets":
		return Google{Credentials: credentials}, nil
	case "xlsx", "excel":
		return XLSX{Path: path}, nil
	case "csv":
		return CSVDir{Dir: path}, nil
	}
	return nil, fmt.Errorf("unknown sheet source %q", kind)
}
