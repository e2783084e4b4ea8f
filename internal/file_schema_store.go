package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lychee-technology/datamodel"
)

// FileSchemaStore keeps schema files in a directory tree. Writes go through a staging file
// in the target directory followed by a rename, so readers never see partial content.
type FileSchemaStore struct {
	root string
}

var _ datamodel.SchemaStore = (*FileSchemaStore)(nil)

// NewFileSchemaStore returns a store rooted at dir.
func NewFileSchemaStore(dir string) (*FileSchemaStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve schema root %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, datamodel.NewSchemaError(datamodel.SchemaErrorTypeConfigError, "schema root is not accessible", err)
	}
	if !info.IsDir() {
		return nil, datamodel.NewSchemaError(datamodel.SchemaErrorTypeConfigError, fmt.Sprintf("schema root %s is not a directory", abs), nil)
	}
	return &FileSchemaStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FileSchemaStore) Root() string {
	return s.root
}

func (s *FileSchemaStore) resolve(p string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	if cleaned == "/" {
		return "", &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeInvalidFormat, Path: p, Message: "empty path"}
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *FileSchemaStore) Read(ctx context.Context, p string) (string, error) {
	full, err := s.resolve(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", datamodel.NewSchemaNotFoundError(p, err)
	}
	if err != nil {
		return "", &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: p, Message: "read failed", Cause: err}
	}
	return string(data), nil
}

func (s *FileSchemaStore) Write(ctx context.Context, p string, content string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: p, Message: "create directory failed", Cause: err}
	}

	staging := filepath.Join(dir, "."+filepath.Base(full)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(staging, []byte(content), 0o644); err != nil {
		return &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: p, Message: "write failed", Cause: err}
	}
	if err := os.Rename(staging, full); err != nil {
		_ = os.Remove(staging)
		return &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: p, Message: "replace failed", Cause: err}
	}
	return nil
}

// Delete removes p. A missing file is not an error.
func (s *FileSchemaStore) Delete(ctx context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: p, Message: "delete failed", Cause: err}
	}
	return nil
}

func (s *FileSchemaStore) List(ctx context.Context, prefix string) ([]string, error) {
	start := s.root
	if strings.Trim(prefix, "/") != "" {
		full, err := s.resolve(prefix)
		if err != nil {
			return nil, err
		}
		start = full
	}

	var out []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: prefix, Message: "list failed", Cause: err}
	}
	sort.Strings(out)
	return out, nil
}
