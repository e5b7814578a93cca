package gitsync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// clearDestination removes every entry under dst except the git metadata
// directory. Files are removed outright, directories recursively.
func (e *Engine) clearDestination(dst string) error {
	entries, err := os.ReadDir(dst)
	if err != nil {
		return fmt.Errorf("reading destination: %w", err)
	}
	for _, entry := range entries {
		if entry.Name() == GitDir {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dst, entry.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// copyTree recursively copies src into dst, skipping git metadata
// directories and transient build-metadata files at every depth.
func (e *Engine) copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if entry.Name() == GitDir {
				continue
			}
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", dstPath, err)
			}
			if err := e.copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if e.skipFile(entry.Name()) {
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) skipFile(name string) bool {
	ext := filepath.Ext(name)
	for _, skip := range e.skipExts {
		if ext == skip {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
