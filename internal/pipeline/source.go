package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"shipyard/internal/manifest"
)

// SourceFile is one discovered artifact: its scan record plus raw content.
type SourceFile struct {
	Record manifest.FileRecord
	Data   []byte
}

// Source yields the batch of files to deploy. Scan failures are
// catastrophic: without a readable source there is no batch.
type Source interface {
	Scan() ([]SourceFile, error)
}

// DirSource walks a directory recursively, skipping dotfiles and dot
// directories. A missing directory yields an empty batch rather than an
// error, matching the "nothing to deploy" case.
type DirSource struct {
	Dir string
}

func (s DirSource) Scan() ([]SourceFile, error) {
	if _, err := os.Stat(s.Dir); os.IsNotExist(err) {
		return nil, nil
	}

	var files []SourceFile
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != s.Dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, SourceFile{
			Record: manifest.FileRecord{
				Path:    path,
				Name:    d.Name(),
				Size:    info.Size(),
				ModTime: info.ModTime().UTC(),
			},
			Data: data,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan source directory %s: %w", s.Dir, err)
	}
	return files, nil
}

// StaticSource serves a fixed batch, for tests and embedding callers.
type StaticSource struct {
	Files []SourceFile
}

func (s StaticSource) Scan() ([]SourceFile, error) { return s.Files, nil }
