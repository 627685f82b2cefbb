package fileio

import (
	"os"
	"path/filepath"
	"sort"
)

// Sibling lists the entries of the directory containing path, excluding
// path itself, sorted by name. Several vendor backends (DICOM series
// discovery, Hamamatsu VMS tile files, MIRAX data/index sidecars) need to
// enumerate neighboring files relative to the file the caller opened.
func Sibling(path string) ([]string, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	self := filepath.Base(path)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == self {
			continue
		}
		names = append(names, filepath.Join(dir, e.Name()))
	}
	sort.Strings(names)
	return names, nil
}

// HasExt reports whether path ends in ext, case-insensitively.
func HasExt(path, ext string) bool {
	got := filepath.Ext(path)
	if len(got) != len(ext) {
		return false
	}
	for i := range got {
		g, e := got[i], ext[i]
		if 'A' <= g && g <= 'Z' {
			g += 'a' - 'A'
		}
		if 'A' <= e && e <= 'Z' {
			e += 'a' - 'A'
		}
		if g != e {
			return false
		}
	}
	return true
}
