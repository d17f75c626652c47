package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FileRotator is an io.Writer over a log file that rolls over by size and
// at the first write of a new day. Rolled files are numbered the way
// logrotate numbers them: ltrnp.log.1 is the newest, optionally gzipped
// to ltrnp.log.1.gz.
type FileRotator struct {
	path     string
	maxBytes int64
	maxAge   time.Duration
	keep     int
	compress bool

	mu     sync.Mutex
	f      *os.File
	size   int64
	opened time.Time
}

// NewFileRotator opens cfg.FilePath for appending, creating its directory.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{
		path:     cfg.FilePath,
		maxBytes: cfg.MaxSize << 20,
		keep:     cfg.MaxBackups,
		compress: cfg.Compress,
	}
	if cfg.MaxAge > 0 {
		r.maxAge = time.Duration(cfg.MaxAge) * 24 * time.Hour
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.f, r.size, r.opened = f, st.Size(), time.Now()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.due(int64(len(p)), time.Now()) {
		if err := r.roll(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

// due reports whether writing n more bytes at now needs a roll first. An
// empty file is never rolled.
func (r *FileRotator) due(n int64, now time.Time) bool {
	if r.size == 0 {
		return false
	}
	if r.maxBytes > 0 && r.size+n > r.maxBytes {
		return true
	}
	return r.opened.Year() != now.Year() || r.opened.YearDay() != now.YearDay()
}

func (r *FileRotator) roll() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	r.f = nil

	old := r.backups()
	for i := len(old) - 1; i >= 0; i-- {
		b := old[i]
		os.Rename(b.path, r.backupPath(b.index+1, b.gz))
	}

	first := r.backupPath(1, false)
	if err := os.Rename(r.path, first); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}
	if r.compress {
		gzipFile(first)
	}
	if err := r.open(); err != nil {
		return err
	}
	r.prune()
	return nil
}

type backup struct {
	path    string
	index   int
	gz      bool
	modTime time.Time
}

func (r *FileRotator) backupPath(index int, gz bool) string {
	p := r.path + "." + strconv.Itoa(index)
	if gz {
		p += ".gz"
	}
	return p
}

// backups lists rolled files ordered newest first.
func (r *FileRotator) backups() []backup {
	matches, _ := filepath.Glob(r.path + ".*")
	var out []backup
	for _, m := range matches {
		suffix := strings.TrimPrefix(m, r.path+".")
		gz := strings.HasSuffix(suffix, ".gz")
		n, err := strconv.Atoi(strings.TrimSuffix(suffix, ".gz"))
		if err != nil || n < 1 {
			continue
		}
		st, err := os.Stat(m)
		if err != nil {
			continue
		}
		out = append(out, backup{path: m, index: n, gz: gz, modTime: st.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// prune removes rolled files beyond the backup count or older than the
// maximum age.
func (r *FileRotator) prune() {
	cutoff := time.Time{}
	if r.maxAge > 0 {
		cutoff = time.Now().Add(-r.maxAge)
	}
	for _, b := range r.backups() {
		if (r.keep > 0 && b.index > r.keep) || b.modTime.Before(cutoff) {
			os.Remove(b.path)
		}
	}
}

// gzipFile replaces path with path.gz. On any failure the uncompressed
// file is kept.
func gzipFile(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return
	}
	zw := gzip.NewWriter(out)
	zw.Name = filepath.Base(path)
	_, err = io.Copy(zw, in)
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

// Files returns the current log file followed by the rolled files, newest
// first.
func (r *FileRotator) Files() []string {
	files := []string{r.path}
	for _, b := range r.backups() {
		files = append(files, b.path)
	}
	return files
}

// Close closes the current file. A later Write reopens it.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// Sync flushes the current file to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return nil
	}
	return r.f.Sync()
}
