package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"consultacnpj/internal/export"
	"consultacnpj/internal/jobs"
	"consultacnpj/internal/models"
	"consultacnpj/internal/testutil"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestProbes(t *testing.T) {
	tests := []struct {
		name  string
		db    Pinger
		store Pinger
		want  int
	}{
		{"ready", stubPinger{}, nil, fiber.StatusOK},
		{"ready with store", stubPinger{}, stubPinger{}, fiber.StatusOK},
		{"database down", stubPinger{err: errors.New("down")}, nil, fiber.StatusServiceUnavailable},
		{"store down", stubPinger{}, stubPinger{err: errors.New("down")}, fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewProbeHandler(tt.db, tt.store)
			app := fiber.New()
			app.Get("/healthz", h.Liveness)
			app.Get("/readyz", h.Readiness)

			resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			resp, err = app.Test(httptest.NewRequest("GET", "/readyz", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestLocalRedirect(t *testing.T) {
	tests := map[string]string{
		"":                     "/",
		"/":                    "/",
		"/export/results.csv":  "/export/results.csv",
		"https://evil.example": "/",
		"//evil.example":       "/",
		`/\evil.example`:       "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, localRedirect(in), in)
	}
}

type staticHistory struct {
	records []models.History
	limit   int
}

func (h *staticHistory) ListHistory(_ context.Context, limit int) ([]models.History, error) {
	h.limit = limit
	return h.records, nil
}

var owner = &models.User{ID: uuid.MustParse("0d1b7c4e-5b9a-4f35-8d2a-7f3c2b1e9a60")}

func newExportApp(t *testing.T, history *staticHistory, withResults bool) *fiber.App {
	t.Helper()
	manager := jobs.NewManager(&testutil.Resolver{Name: "ACME LTDA"}, nil,
		jobs.WithStepDelay(0),
		jobs.WithLogger(testutil.Logger()),
	)
	if withResults {
		_, err := manager.Start(owner.OwnerKey(), []models.LookupRequest{{CNPJ: "11222333000181", Tag: "123.456/2024"}}, models.SourceManual, nil)
		require.NoError(t, err)
		_, err = manager.Step(context.Background(), owner.OwnerKey())
		require.NoError(t, err)
	}

	h := NewExportHandler(manager, history)
	h.now = func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) }

	app := fiber.New()
	app.Use(func(c fiber.Ctx) error {
		c.Locals("user", owner)
		return c.Next()
	})
	app.Get("/export/results.:format", h.Results)
	app.Get("/export/history.:format", h.History)
	return app
}

func TestExportResultsCSV(t *testing.T) {
	app := newExportApp(t, &staticHistory{}, true)

	resp, err := app.Test(httptest.NewRequest("GET", "/export/results.csv", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentTypeCSV, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "resultados_20250304_100000.csv")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Processo,CNPJ,Nome,E-mail", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "ACME LTDA")
}

func TestExportResultsWithoutJob(t *testing.T) {
	app := newExportApp(t, &staticHistory{}, false)

	resp, err := app.Test(httptest.NewRequest("GET", "/export/results.csv", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestExportHistoryXLSX(t *testing.T) {
	history := &staticHistory{records: []models.History{{
		ID:        uuid.New(),
		CreatedAt: time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
		Results:   []models.LookupResult{{CNPJ: "11.222.333/0001-81", Name: "ACME LTDA", Email: models.NoEmail}},
	}}}
	app := newExportApp(t, history, false)

	resp, err := app.Test(httptest.NewRequest("GET", "/export/history.xlsx", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentTypeXLSX, resp.Header.Get("Content-Type"))
	assert.Equal(t, 0, history.limit)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Data", rows[0][0])
	assert.Equal(t, "01/02/25", rows[1][0])
}

func TestExportUnknownFormat(t *testing.T) {
	app := newExportApp(t, &staticHistory{}, true)

	resp, err := app.Test(httptest.NewRequest("GET", "/export/results.pdf", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
