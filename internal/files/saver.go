package files

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BioHazard786/webdrop/internal/transfer"
	"github.com/BioHazard786/webdrop/internal/utils"
)

// DiskSaver writes received files into Dir without overwriting existing
// ones.
type DiskSaver struct {
	Dir string
}

func (s DiskSaver) Save(f transfer.File) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", transfer.NewFileError("create dir", dir, err)
	}

	path := utils.GetUniqueFilename(filepath.Join(dir, SafeName(f.Metadata.Name)))
	if err := os.WriteFile(path, f.Payload, 0o644); err != nil {
		return "", transfer.NewFileError("write", path, err)
	}
	return path, nil
}

// SafeName strips any directory part a peer put in a file name.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == ".." || name == "" {
		return "file"
	}
	return name
}
