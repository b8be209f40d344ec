package archivex

import (
	"io"

	"github.com/nwaples/rardecode/v2"
)

func unpackRarEntries(src, destDir string) ([]UnpackEntry, error) {
	r, err := rardecode.OpenReader(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []UnpackEntry
	for {
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, err
		}
		if hdr.IsDir {
			continue
		}
		if werr := writeEntry(destDir, hdr.Name, r); werr != nil {
			entries = append(entries, UnpackEntry{Name: hdr.Name, Err: werr})
			continue
		}
		entries = append(entries, UnpackEntry{Name: hdr.Name})
	}
	return entries, nil
}
