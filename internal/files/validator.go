package files

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/BioHazard786/webdrop/internal/transfer"
	"github.com/BioHazard786/webdrop/internal/webrtc"
)

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	Size int64

	// Type is the MIME type, from the extension or else the content
	Type string
}

// ValidateFiles checks that every path is a readable regular file. All
// problems are reported together.
func ValidateFiles(paths []string) ([]FileInfo, error) {
	if len(paths) == 0 {
		return nil, transfer.WrapError("validate", transfer.ErrInvalidFile, "no files specified")
	}

	var (
		infos []FileInfo
		errs  []error
	)
	for _, path := range paths {
		info, err := validateSingleFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		infos = append(infos, info)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return infos, nil
}

func validateSingleFile(path string) (FileInfo, error) {
	invalid := func(reason string) error {
		return transfer.NewFileError("validate", path, fmt.Errorf("%w: %s", transfer.ErrInvalidFile, reason))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, invalid(err.Error())
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, invalid("file does not exist")
		}
		return FileInfo{}, invalid(err.Error())
	}
	if stat.IsDir() {
		return FileInfo{}, invalid("is a directory")
	}

	f, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, invalid("cannot open file (check permissions)")
	}
	f.Close()

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: detectType(absPath),
	}, nil
}

// detectType uses the extension when it is known and sniffs the content
// otherwise.
func detectType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	if m, err := mimetype.DetectFile(path); err == nil {
		return m.String()
	}
	return "application/octet-stream"
}

// GetTotalSize returns the total size of all files
func GetTotalSize(infos []FileInfo) int64 {
	var total int64
	for _, f := range infos {
		total += f.Size
	}
	return total
}

// Metadata announces the file to the receiver under a fresh ID.
func (f FileInfo) Metadata() webrtc.FileMetadata {
	return webrtc.FileMetadata{
		ID:   uuid.NewString(),
		Name: f.Name,
		Size: f.Size,
		Type: f.Type,
	}
}

func (f FileInfo) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}
