package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultacnpj/internal/export"
	"consultacnpj/internal/models"
)

func TestReadHistory(t *testing.T) {
	input := `[
	  {"data": "2024-05-02T13:45:10.123456+00:00", "tipo": "upload", "cnpjs": "11222333000181",
	   "arquivo_nome": "lote.xlsx", "resultado": [{"cnpj": "11.222.333/0001-81", "nome": "ACME", "email": "a@acme.example"}]},
	  {"tipo": "", "cnpjs": "45997418000153", "arquivo_nome": null, "resultado": null}
	]`

	records, err := readHistory(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, time.Date(2024, 5, 2, 13, 45, 10, 123456000, time.UTC), records[0].CreatedAt)
	assert.Equal(t, models.SourceUpload, records[0].Kind)
	require.NotNil(t, records[0].Filename)
	assert.Equal(t, "lote.xlsx", *records[0].Filename)
	require.Len(t, records[0].Results, 1)
	assert.Equal(t, "ACME", records[0].Results[0].Name)

	assert.True(t, records[1].CreatedAt.IsZero())
	assert.Equal(t, uuid.Nil, records[1].ID)
	assert.Nil(t, records[1].Filename)
}

func TestReadHistoryRejectsNonList(t *testing.T) {
	_, err := readHistory(strings.NewReader(`{"tipo": "manual"}`))
	assert.Error(t, err)
}

func TestWriteHistoryOldestFirst(t *testing.T) {
	newer := models.History{ID: uuid.New(), Kind: models.SourceManual, CNPJs: "2", CreatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)}
	older := models.History{ID: uuid.New(), Kind: models.SourceManual, CNPJs: "1", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	var buf bytes.Buffer
	require.NoError(t, writeHistory(&buf, []models.History{newer, older}))
	assert.NotContains(t, buf.String(), newer.ID.String())

	records, err := readHistory(&buf)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].CNPJs)
	assert.Equal(t, "2", records[1].CNPJs)
	assert.Equal(t, older.CreatedAt, records[0].CreatedAt)
	assert.NotNil(t, records[0].Results)
}

func TestWriteExportRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	rows := export.FromResults([]models.LookupResult{{CNPJ: "11.222.333/0001-81", Name: "ACME"}})

	require.NoError(t, writeExport(filepath.Join(dir, "out.csv"), rows, false))
	require.NoError(t, writeExport(filepath.Join(dir, "out.XLSX"), rows, false))
	assert.Error(t, writeExport(filepath.Join(dir, "out.pdf"), rows, false))
}
