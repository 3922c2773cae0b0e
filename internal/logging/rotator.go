package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotatorConfig configures a FileRotator.
type RotatorConfig struct {
	// Path is the active log file.
	Path string

	// MaxSizeMB is the size at which the active file is rotated. Zero
	// disables rotation.
	MaxSizeMB int64

	// MaxBackups is the number of rotated files to keep. Zero keeps all.
	MaxBackups int

	// MaxAgeDays removes rotated files older than this. Zero keeps all.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool

	// maxBytes overrides MaxSizeMB; used by tests.
	maxBytes int64
}

func (c RotatorConfig) limit() int64 {
	if c.maxBytes > 0 {
		return c.maxBytes
	}
	return c.MaxSizeMB * 1024 * 1024
}

// FileRotator is an io.Writer that rotates its file by size.
type FileRotator struct {
	config RotatorConfig
	mu     sync.Mutex
	file   *os.File
	size   int64

	// background compress and cleanup work
	wg sync.WaitGroup
}

// NewFileRotator opens (or creates) cfg.Path for appending.
func NewFileRotator(cfg RotatorConfig) (*FileRotator, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	r := &FileRotator{config: cfg}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	if err := r.openFile(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *FileRotator) openFile() error {
	file, err := os.OpenFile(r.config.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	r.file = file
	r.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	if max := r.config.limit(); max > 0 && r.size > 0 && r.size+int64(len(p)) > max {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err = r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate renames the active file aside and opens a fresh one. Caller holds mu.
func (r *FileRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	r.file = nil

	name, ext := r.splitName()
	timestamp := time.Now().Format("20060102-150405.000")
	rotatedPath := filepath.Join(filepath.Dir(r.config.Path), fmt.Sprintf("%s-%s%s", name, timestamp, ext))
	for i := 1; fileExists(rotatedPath) || fileExists(rotatedPath+".gz"); i++ {
		rotatedPath = filepath.Join(filepath.Dir(r.config.Path), fmt.Sprintf("%s-%s.%d%s", name, timestamp, i, ext))
	}

	if err := os.Rename(r.config.Path, rotatedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if err := r.openFile(); err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.config.Compress {
			compressFile(rotatedPath)
		}
		r.cleanup()
	}()

	return nil
}

func (r *FileRotator) splitName() (name, ext string) {
	base := filepath.Base(r.config.Path)
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// compressFile gzips path and removes the original on success.
func compressFile(path string) {
	input, err := os.Open(path)
	if err != nil {
		return
	}
	defer input.Close()

	output, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer output.Close()

	gz := gzip.NewWriter(output)
	gz.Name = filepath.Base(path)
	gz.ModTime = time.Now()

	if _, err := io.Copy(gz, input); err != nil {
		gz.Close()
		os.Remove(path + ".gz")
		return
	}

	if err := gz.Close(); err != nil {
		os.Remove(path + ".gz")
		return
	}

	os.Remove(path)
}

// rotated lists rotated files, oldest first.
func (r *FileRotator) rotated() []string {
	name, ext := r.splitName()
	pattern := filepath.Join(filepath.Dir(r.config.Path), name+"-*"+ext+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	files := make([]fileInfo, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: match, modTime: info.ModTime()})
	}

	// Names embed the rotation time, so they break modtime ties.
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out
}

// cleanup applies the backup count and age limits.
func (r *FileRotator) cleanup() {
	files := r.rotated()

	if max := r.config.MaxBackups; max > 0 && len(files) > max {
		for _, path := range files[:len(files)-max] {
			os.Remove(path)
		}
		files = files[len(files)-max:]
	}

	if r.config.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -r.config.MaxAgeDays)
		for _, path := range files {
			if info, err := os.Stat(path); err == nil && info.ModTime().Before(cutoff) {
				os.Remove(path)
			}
		}
	}
}

// Close waits for pending compression and cleanup, then closes the file.
func (r *FileRotator) Close() error {
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Sync flushes the active file to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}

// Files returns the active log file followed by rotated files, oldest first.
func (r *FileRotator) Files() []string {
	return append([]string{r.config.Path}, r.rotated()...)
}
