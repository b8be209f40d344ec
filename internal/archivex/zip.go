package archivex

import (
	"archive/zip"
	"io"
)

// unpackZip opens a zip archive and closes it again. It backs
// IsPacked's open-probe only; it extracts nothing, whatever probeOnly
// is. Real extraction is done by unpackZipEntries.
func unpackZip(src, destDir string, probeOnly bool) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()
	if probeOnly {
		return nil
	}
	return nil
}

func unpackZipEntries(src, destDir string) ([]UnpackEntry, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []UnpackEntry
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, extractZipEntry(f, destDir))
	}
	return entries, nil
}

func extractZipEntry(f *zip.File, destDir string) UnpackEntry {
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

type zipWriter struct {
	zw *zip.Writer
}

func newZipWriter(w io.Writer) *zipWriter {
	return &zipWriter{zw: zip.NewWriter(w)}
}

func (z *zipWriter) CreateDeflate(name string) (io.Writer, error) {
	return z.zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
}

func (z *zipWriter) Close() error {
	return z.zw.Close()
}
