package fetcher

import (
	"archive/zip"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP writes the data files of a ZIP archive under destDir and returns
// their paths in archive order. Directories and macOS metadata (the __MACOSX
// tree and AppleDouble "._" files) are not extracted.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range dataEntries(r.File) {
		dest, err := entryPath(destDir, f.Name)
		if err != nil {
			return extracted, err
		}
		if err := extractEntry(f, dest); err != nil {
			return extracted, err
		}
		extracted = append(extracted, dest)
	}
	return extracted, nil
}

// dataEntries filters an archive listing down to the files worth extracting.
func dataEntries(files []*zip.File) []*zip.File {
	out := make([]*zip.File, 0, len(files))
	for _, f := range files {
		if f.FileInfo().IsDir() || isMacMetadata(f.Name) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isMacMetadata(name string) bool {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "__MACOSX" || strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	base := path.Base(name)
	return strings.HasPrefix(base, "._") || base == ".DS_Store"
}

// entryPath maps an entry name into destDir, rejecting names that escape it.
func entryPath(destDir, name string) (string, error) {
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	root := filepath.Clean(destDir) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(dest), root) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", name)
	}
	return dest, nil
}

func extractEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrapf(err, "zip: create directory for %s", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	if _, err := copyToFile(rc, dest); err != nil {
		return eris.Wrapf(err, "zip: extract %s", f.Name)
	}
	return nil
}
