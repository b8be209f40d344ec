package archivex

import "github.com/bodgit/sevenzip"

func unpackSevenZipEntries(src, destDir string) ([]UnpackEntry, error) {
	r, err := sevenzip.OpenReader(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []UnpackEntry
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, extractSevenZipEntry(f, destDir))
	}
	return entries, nil
}

func extractSevenZipEntry(f *sevenzip.File, destDir string) UnpackEntry {
	rc, err := f.Open()
	if err != nil {
		return UnpackEntry{Name: f.Name, Err: err}
	}
	defer rc.Close()

	if err := writeEntry(destDir, f.Name, rc); err != nil {
		return UnpackEntry{Name: f.Name, Err: err}
	}
	return UnpackEntry{Name: f.Name}
}
