package utils

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// ZipFiles writes paths into a new archive at target, each at the archive
// root under its base name. A partial archive is removed on failure.
func ZipFiles(target string, paths []string) (err error) {
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
		if err != nil {
			os.Remove(target)
		}
	}()

	w := zip.NewWriter(out)
	for _, p := range paths {
		if err := addFile(w, p); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func addFile(w *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	dst, err := w.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}
