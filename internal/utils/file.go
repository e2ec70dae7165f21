package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// ClearDir removes every file and subdirectory inside dir, keeping dir itself
func ClearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// ListFiles recursively lists all regular files in a directory, sorted by path
func ListFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			files = append(files, path)
		}

		return nil
	})

	sort.Strings(files)
	return files, err
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}

// WriteFileAtomic writes path through a temporary file in the same directory
// and renames it into place, so readers see either the old or the new file.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := writeTemp(path, write)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func writeTemp(path string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmp := f.Name()

	bw := bufio.NewWriter(f)
	err = write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return tmp, nil
}

// Batch stages several files and moves them into place together. Nothing is
// visible at the final paths until Commit; Abort discards the staged files.
type Batch struct {
	temps  []string
	finals []string
}

// Stage writes one file of the batch to a temporary location
func (b *Batch) Stage(path string, write func(io.Writer) error) error {
	tmp, err := writeTemp(path, write)
	if err != nil {
		return err
	}
	b.temps = append(b.temps, tmp)
	b.finals = append(b.finals, path)
	return nil
}

// Commit moves every staged file to its final path. Files already at the
// final paths are first renamed aside; if any rename fails, the new files are
// removed and the old ones are put back, so the batch lands entirely or not
// at all. A crash in the middle of Commit can still leave a mix, with the old
// files kept under their .orig names.
func (b *Batch) Commit() error {
	defer func() { b.temps, b.finals = nil, nil }()

	backups := make([]string, len(b.finals))
	rollback := func(committed int) {
		for k := 0; k < committed; k++ {
			os.Remove(b.finals[k])
		}
		for k, bak := range backups {
			if bak != "" {
				os.Rename(bak, b.finals[k])
			}
		}
		for _, tmp := range b.temps[committed:] {
			os.Remove(tmp)
		}
	}

	for k, final := range b.finals {
		if !FileExists(final) {
			continue
		}
		bak := backupName(final)
		if err := os.Rename(final, bak); err != nil {
			rollback(0)
			return fmt.Errorf("failed to move aside %s: %w", final, err)
		}
		backups[k] = bak
	}
	for k := range b.temps {
		if err := os.Rename(b.temps[k], b.finals[k]); err != nil {
			rollback(k)
			return fmt.Errorf("failed to replace %s: %w", b.finals[k], err)
		}
	}
	for _, bak := range backups {
		if bak != "" {
			os.Remove(bak)
		}
	}
	return nil
}

func backupName(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".orig-"+uuid.NewString()[:8])
}

// Abort removes staged files that were not committed
func (b *Batch) Abort() {
	for _, tmp := range b.temps {
		os.Remove(tmp)
	}
	b.temps, b.finals = nil, nil
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
