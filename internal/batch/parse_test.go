package batch

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func caseIDs(cases []Case) []string {
	ids := make([]string, len(cases))
	for i, c := range cases {
		ids[i] = c.ID
	}
	return ids
}

func TestParseDir_PerFolder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"case02/scan.png":      string(pngBytes),
		"case02/notes.md":      "ignored, report.txt wins",
		"case02/report.txt":    "  The lungs are clear.\n",
		"case01/image.jpg":     "\xff\xd8\xff\xe0jpeg",
		"case01/dictation.txt": "No pneumothorax.",
		"case03/report.txt":    "report without an image",
		"loose.png":            string(pngBytes),
	})

	cases, err := ParseDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"case01", "case02"}, caseIDs(cases))

	assert.Equal(t, "No pneumothorax.", cases[0].ReportText)
	assert.Equal(t, "image/jpeg", cases[0].MIMEType)
	assert.Equal(t, "The lungs are clear.", cases[1].ReportText)
	assert.Equal(t, "image/png", cases[1].MIMEType)
	assert.Equal(t, pngBytes, cases[1].ImageData)
}

func TestParseDir_FlatFallback(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"b.png":       string(pngBytes),
		"b.txt":       "Report B.",
		"a.jpeg":      "\xff\xd8\xff\xe0jpeg",
		"a.md":        "Report A.",
		"c.png":       string(pngBytes),
		".hidden.txt": "skip",
	})

	cases, err := ParseDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, caseIDs(cases))
	assert.Equal(t, "Report A.", cases[0].ReportText)
}

func TestParseDir_NoCases(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"readme.txt": "nothing to audit"})

	_, err := ParseDir(dir)
	assert.ErrorContains(t, err, "no valid cases")
}

func TestParseArchive(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"case01/image.png":            string(pngBytes),
		"case01/report.txt":           "The lungs are clear.",
		"__MACOSX/case01/._image.png": "resource fork",
	})

	cases, err := ParseArchive(zipPath, filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "case01", cases[0].ID)
	assert.Equal(t, "The lungs are clear.", cases[0].ReportText)
}

func TestParseArchive_RejectsZipSlip(t *testing.T) {
	for _, name := range []string{"../escape.txt", "case/../../escape.txt"} {
		t.Run(name, func(t *testing.T) {
			zipPath := writeZip(t, map[string]string{name: "pwned"})
			extractDir := filepath.Join(t.TempDir(), "out")

			_, err := ParseArchive(zipPath, extractDir)
			assert.Error(t, err)
			assert.NoFileExists(t, filepath.Join(filepath.Dir(extractDir), "escape.txt"))
		})
	}
}

func TestParseArchive_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := ParseArchive(path, t.TempDir())
	assert.Error(t, err)
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	got, err := safeJoin(root, "case01/report.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "case01", "report.txt"), got)

	_, err = safeJoin(root, "/etc/passwd")
	assert.Error(t, err)
}
