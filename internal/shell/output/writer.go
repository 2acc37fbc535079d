// Package output writes rendered documents into timestamped directories.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DirLayout names one run's directory, minute resolution.
const DirLayout = "2006_01_02_15_04"

// Document is one rendered file.
type Document struct {
	Filename string
	Content  []byte
}

// Failure records a document that could not be written.
type Failure struct {
	Filename string
	Err      error
}

// Result describes one Write call.
type Result struct {
	Dir     string
	Written []string
	Failed  []Failure
}

// Config configures a Writer.
type Config struct {
	Root     string
	Location *time.Location
	DirMode  os.FileMode
	FileMode os.FileMode
}

// Writer places documents under <Root>/<YYYY_MM_DD_HH_MM>.
type Writer struct {
	root     string
	location *time.Location
	dirMode  os.FileMode
	fileMode os.FileMode
	logger   *slog.Logger
}

// NewWriter creates a writer. The root directory is created on first write.
func NewWriter(cfg Config, logger *slog.Logger) (*Writer, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, NewOutputError("NewWriter", "", "root is empty", ErrRootRequired)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0o755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}
	return &Writer{
		root:     cfg.Root,
		location: cfg.Location,
		dirMode:  cfg.DirMode,
		fileMode: cfg.FileMode,
		logger:   logger.With("component", "output"),
	}, nil
}

// Root returns the configured output root.
func (w *Writer) Root() string {
	return w.root
}

// DirFor returns the run directory for a timestamp.
func (w *Writer) DirFor(at time.Time) string {
	return filepath.Join(w.root, at.In(w.location).Format(DirLayout))
}

// Write stores every document in the directory for at. A failing document
// is recorded in the result and the rest are still written; the returned
// error is set only when the directory itself cannot be created or ctx ends.
func (w *Writer) Write(ctx context.Context, at time.Time, docs []Document) (*Result, error) {
	dir := w.DirFor(at)
	result := &Result{Dir: dir}

	if err := os.MkdirAll(dir, w.dirMode); err != nil {
		return result, NewOutputError("Write", dir, err.Error(), errors.Join(ErrCreateDir, err))
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := w.writeOne(dir, doc); err != nil {
			w.logger.Error("document write failed", "file", doc.Filename, "error", err)
			result.Failed = append(result.Failed, Failure{Filename: doc.Filename, Err: err})
			continue
		}
		w.logger.Debug("document written", "file", doc.Filename, "bytes", len(doc.Content))
		result.Written = append(result.Written, doc.Filename)
	}
	return result, nil
}

// writeOne replaces the target through a temporary file in the same
// directory, so a reader never sees a partial document.
func (w *Writer) writeOne(dir string, doc Document) error {
	if doc.Filename == "" || filepath.Base(doc.Filename) != doc.Filename || doc.Filename == "." || doc.Filename == ".." {
		return NewOutputError("Write", doc.Filename, "rejected file name", ErrInvalidFilename)
	}
	target := filepath.Join(dir, doc.Filename)

	tmp, err := os.CreateTemp(dir, "."+doc.Filename+".tmp-*")
	if err != nil {
		return NewOutputError("Write", target, err.Error(), errors.Join(ErrWriteDocument, err))
	}
	tmpName := tmp.Name()
	cleanup := func(cause error) error {
		tmp.Close()
		os.Remove(tmpName)
		return NewOutputError("Write", target, cause.Error(), errors.Join(ErrWriteDocument, cause))
	}

	if _, err := tmp.Write(doc.Content); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(w.fileMode); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return NewOutputError("Write", target, err.Error(), errors.Join(ErrWriteDocument, err))
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return NewOutputError("Write", target, fmt.Sprintf("rename: %v", err), errors.Join(ErrWriteDocument, err))
	}
	return nil
}
