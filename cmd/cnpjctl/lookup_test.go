package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultacnpj/internal/models"
	"consultacnpj/internal/ratelimit"
	"consultacnpj/internal/testutil"
)

func TestResolveAllPacesLookups(t *testing.T) {
	r := &testutil.Resolver{}
	reqs := []models.LookupRequest{
		{CNPJ: "11222333000181", Tag: "123.456/2024"},
		{CNPJ: "08708002000170"},
		{CNPJ: "45997418000153"},
	}
	var progress bytes.Buffer

	start := time.Now()
	results, err := resolveAll(context.Background(), r, reqs, ratelimit.NewPacer(25*time.Millisecond), &progress)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
	require.Len(t, results, 3)
	assert.Equal(t, "123.456/2024", results[0].Tag)
	assert.Equal(t, "08.708.002/0001-70", results[1].CNPJ)
	assert.Equal(t, []string{"11222333000181", "08708002000170", "45997418000153"}, r.Calls())
	assert.Contains(t, progress.String(), "[3/3]")
}

func TestResolveAllStopsWhenCancelled(t *testing.T) {
	r := &testutil.Resolver{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := resolveAll(ctx, r, testutil.Requests("11222333000181"), ratelimit.NewPacer(time.Hour), &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, results)
	assert.Empty(t, r.Calls())
}
