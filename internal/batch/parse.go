// Package batch audits archives of radiology cases.
package batch

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/radaudit/internal/validate"
)

// Preferred report file names inside a per-case folder, in lookup order
var reportNames = []string{"report.txt", "report.md", "findings.txt", "text.txt"}

// Extraction limits for untrusted archives
const (
	maxArchiveFiles = 10000
	maxFileBytes    = 64 << 20
)

// Case is one image and report pair found in an archive or directory
type Case struct {
	ID         string
	ImagePath  string
	ImageData  []byte
	MIMEType   string
	ReportText string
}

// ParseArchive extracts a zip archive into extractDir and parses the cases in it.
// Entries that would escape extractDir are rejected.
func ParseArchive(zipPath, extractDir string) ([]Case, error) {
	if err := extract(zipPath, extractDir); err != nil {
		return nil, err
	}
	return ParseDir(extractDir)
}

// ParseDir finds cases in dir.
//
// The per-folder layout is tried first: each subdirectory holding an image and
// a report is one case named after the folder. When that yields nothing, the
// flat layout pairs files in dir that share a stem. It is an error to find no cases.
func ParseDir(dir string) ([]Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", dir)
	}

	var cases []Case
	for _, e := range entries {
		if !e.IsDir() || skipped(e.Name()) {
			continue
		}
		folder := filepath.Join(dir, e.Name())
		imgPath, rptPath, err := findPair(folder)
		if err != nil {
			return nil, err
		}
		if imgPath == "" || rptPath == "" {
			continue
		}
		c, err := load(e.Name(), imgPath, rptPath)
		if err != nil {
			zap.L().Warn("skipping unreadable case", zap.String("case_id", e.Name()), zap.Error(err))
			continue
		}
		cases = append(cases, c)
	}

	if len(cases) == 0 {
		cases = parseFlat(dir, entries)
	}

	if len(cases) == 0 {
		return nil, eris.New("batch: no valid cases found; each case needs an image file (.png/.jpg/etc.) paired with a report (.txt)")
	}
	return cases, nil
}

func parseFlat(dir string, entries []os.DirEntry) []Case {
	type pair struct{ image, report string }
	stems := make(map[string]*pair)

	for _, e := range entries {
		if e.IsDir() || skipped(e.Name()) {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		p := stems[stem]
		if p == nil {
			p = &pair{}
			stems[stem] = p
		}
		switch {
		case validate.IsImageFile(name):
			p.image = filepath.Join(dir, name)
		case isReportFile(name):
			p.report = filepath.Join(dir, name)
		}
	}

	keys := make([]string, 0, len(stems))
	for stem := range stems {
		keys = append(keys, stem)
	}
	sort.Strings(keys)

	var cases []Case
	for _, stem := range keys {
		p := stems[stem]
		if p.image == "" || p.report == "" {
			continue
		}
		c, err := load(stem, p.image, p.report)
		if err != nil {
			zap.L().Warn("skipping unreadable case", zap.String("case_id", stem), zap.Error(err))
			continue
		}
		cases = append(cases, c)
	}
	return cases
}

// findPair returns the first image (by name) and the preferred report in folder
func findPair(folder string) (image, report string, err error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", "", eris.Wrapf(err, "batch: read %s", folder)
	}

	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || skipped(e.Name()) {
			continue
		}
		files[e.Name()] = true
		if image == "" && validate.IsImageFile(e.Name()) {
			image = filepath.Join(folder, e.Name())
		}
	}

	for _, name := range reportNames {
		if files[name] {
			return image, filepath.Join(folder, name), nil
		}
	}
	for _, e := range entries {
		if files[e.Name()] && isReportFile(e.Name()) {
			return image, filepath.Join(folder, e.Name()), nil
		}
	}
	return image, "", nil
}

func load(id, imagePath, reportPath string) (Case, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return Case{}, eris.Wrap(err, "batch: read image")
	}
	text, err := os.ReadFile(reportPath)
	if err != nil {
		return Case{}, eris.Wrap(err, "batch: read report")
	}
	return Case{
		ID:         id,
		ImagePath:  imagePath,
		ImageData:  data,
		MIMEType:   validate.DetectImageMIME(data, imagePath),
		ReportText: strings.TrimSpace(strings.ToValidUTF8(string(text), "�")),
	}, nil
}

func isReportFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// skipped reports whether a name is archive metadata rather than case content
func skipped(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__MACOSX"
}

func extract(zipPath, extractDir string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrapf(err, "batch: open archive %s", zipPath)
	}
	defer func() { _ = zr.Close() }()

	if len(zr.File) > maxArchiveFiles {
		return eris.Errorf("batch: archive has %d entries, limit is %d", len(zr.File), maxArchiveFiles)
	}

	root, err := filepath.Abs(extractDir)
	if err != nil {
		return eris.Wrap(err, "batch: resolve extract dir")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return eris.Wrap(err, "batch: create extract dir")
	}

	for _, f := range zr.File {
		target, err := safeJoin(root, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return eris.Wrap(err, "batch: create directory")
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

// safeJoin resolves name under root and rejects paths that escape it
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", eris.Errorf("batch: archive entry %q has an absolute path", name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("batch: archive entry %q escapes the extract dir", name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) (err error) {
	if f.UncompressedSize64 > maxFileBytes {
		return eris.Errorf("batch: archive entry %q exceeds %d bytes", f.Name, maxFileBytes)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return eris.Wrap(err, "batch: create directory")
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "batch: open archive entry %q", f.Name)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return eris.Wrap(err, "batch: create file")
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = eris.Wrap(closeErr, "batch: close file")
		}
	}()

	n, err := io.Copy(out, io.LimitReader(rc, maxFileBytes+1))
	if err != nil {
		return eris.Wrapf(err, "batch: extract %q", f.Name)
	}
	if n > maxFileBytes {
		return eris.Errorf("batch: archive entry %q exceeds %d bytes", f.Name, maxFileBytes)
	}
	return nil
}
