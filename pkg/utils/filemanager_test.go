package utils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *FileManager {
	t.Helper()
	root := t.TempDir()
	fm := NewFileManager(
		filepath.Join(root, "input"),
		filepath.Join(root, "output"),
		filepath.Join(root, "archive"),
	)
	require.NoError(t, fm.EnsureDirectories())
	return fm
}

func TestPutReplacesArtifact(t *testing.T) {
	fm := newTestManager(t)
	ctx := context.Background()

	path, err := fm.Put(ctx, "Facturacion_Marzo_AR.xlsx", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fm.OutputDir, "Facturacion_Marzo_AR.xlsx"), path)

	_, err = fm.Put(ctx, "Facturacion_Marzo_AR.xlsx", []byte("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(fm.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestPutRejectsPaths(t *testing.T) {
	fm := newTestManager(t)
	_, err := fm.Put(context.Background(), "../escape.xlsx", []byte("x"))
	assert.Error(t, err)
	_, err = fm.Put(context.Background(), "", []byte("x"))
	assert.Error(t, err)
}

func TestPutHonoursCancelledContext(t *testing.T) {
	fm := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fm.Put(ctx, "a.xlsx", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArchiveInputFileAvoidsOverwrite(t *testing.T) {
	fm := newTestManager(t)

	write := func() string {
		p := filepath.Join(fm.InputDir, "summary_marzo.xlsx")
		require.NoError(t, os.WriteFile(p, []byte("data"), 0644))
		return p
	}

	first, err := fm.ArchiveInputFile(write())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fm.InputArchiveDir, "summary_marzo.xlsx"), first)

	second, err := fm.ArchiveInputFile(write())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.True(t, FileExists(first))
	assert.True(t, FileExists(second))
	assert.False(t, FileExists(filepath.Join(fm.InputDir, "summary_marzo.xlsx")))
}

func TestArchiveTimestampSubdirs(t *testing.T) {
	fm := newTestManager(t)
	fm.UseTimestampSubdirs = true
	fm.Now = func() time.Time { return time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC) }

	p := filepath.Join(fm.InputDir, "cert_100.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF"), 0644))

	archived, err := fm.ArchiveInputFile(p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fm.InputArchiveDir, "2025", "03", "31", "cert_100.pdf"), archived)
}

func TestDiscoverFiles(t *testing.T) {
	fm := newTestManager(t)
	for _, name := range []string{"b_2.pdf", "a_1.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(fm.InputDir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(fm.InputDir, "sub.pdf"), 0755))

	files, err := fm.DiscoverFiles(fm.InputDir, "*.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(fm.InputDir, "a_1.PDF"),
		filepath.Join(fm.InputDir, "b_2.pdf"),
	}, files)
}

func TestResolveInput(t *testing.T) {
	fm := newTestManager(t)
	p := filepath.Join(fm.InputDir, "resumen_abril.xlsx")
	require.NoError(t, os.WriteFile(p, nil, 0644))

	assert.Equal(t, p, fm.ResolveInput("resumen_abril.xlsx"))
	assert.Equal(t, p, fm.ResolveInput(p))
	assert.Equal(t, "missing.xlsx", fm.ResolveInput("missing.xlsx"))
}

func TestWriteErrorLog(t *testing.T) {
	fm := newTestManager(t)
	fm.Now = func() time.Time { return time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC) }

	path, err := fm.WriteErrorLog(nil)
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = fm.WriteErrorLog([]ErrorLogEntry{{
		Timestamp:    fm.Now(),
		FileName:     "resumen_marzo.xlsx",
		ErrorType:    "validation",
		ErrorMessage: "'Client' is required",
		RowNumber:    3,
		FieldName:    "Client",
	}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fm.OutputDir, "error_log_20250401_093000.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Row Number:     3")
	assert.Contains(t, string(data), "'Client' is required")
}
