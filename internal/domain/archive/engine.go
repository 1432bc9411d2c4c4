package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
	"github.com/kanbang/xdesktop/internal/infrastructure/logging"
)

// Default extraction limits.
const (
	DefaultMaxFiles = 100000
	DefaultMaxBytes = 4 << 30
)

// Options controls compression and extraction limits.
type Options struct {
	// Level is the deflate level used for file entries.
	Level int
	// MaxFiles caps the number of file entries an archive may extract.
	MaxFiles int
	// MaxBytes caps the total uncompressed size an archive may extract.
	MaxBytes int64
}

// DefaultOptions returns production limits.
func DefaultOptions() Options {
	return Options{
		Level:    flate.DefaultCompression,
		MaxFiles: DefaultMaxFiles,
		MaxBytes: DefaultMaxBytes,
	}
}

// Stats summarizes one build or extraction.
type Stats struct {
	Files int   `json:"files"`
	Dirs  int   `json:"dirs"`
	Bytes int64 `json:"bytes"`
}

// Engine packs adapter trees into zip archives and unpacks them.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

// NewEngine creates an archive engine. Zero limits fall back to defaults.
func NewEngine(opts Options, logger *zap.Logger) *Engine {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Level == 0 {
		opts.Level = flate.DefaultCompression
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger}
}

// Build writes a zip archive of the selected paths to w. Directories are
// included recursively; entry names are relative to base. Every selected
// path must lie within base. Paths listed in exclude are skipped, which lets
// an archive be written inside the tree it packs.
//
// The tree is walked with an explicit stack so depth is bounded by memory,
// not by the goroutine stack.
func (e *Engine) Build(ctx context.Context, fsys afero.Fs, base string, selected []string, w io.Writer, exclude ...string) (Stats, error) {
	var stats Stats

	stack := make([]string, 0, len(selected))
	for i := len(selected) - 1; i >= 0; i-- {
		if _, err := vfs.Rel(base, selected[i]); err != nil {
			return stats, err
		}
		stack = append(stack, selected[i])
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, e.opts.Level)
	})

	seen := make(map[string]bool, len(exclude))
	for _, p := range exclude {
		seen[p] = true
	}
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[p] {
			continue
		}
		seen[p] = true

		rel, err := vfs.Rel(base, p)
		if err != nil {
			return stats, err
		}

		info, err := lstat(fsys, p)
		if err != nil {
			return stats, vfs.Wrap(vfs.Classify(err), "archive", p, err)
		}

		switch {
		case info.IsDir():
			if rel != "." {
				header := &zip.FileHeader{Name: rel + "/", Method: zip.Store, Modified: info.ModTime()}
				header.SetMode(info.Mode())
				if _, err := zw.CreateHeader(header); err != nil {
					return stats, fmt.Errorf("write directory entry %s: %w", rel, err)
				}
				stats.Dirs++
			}

			children, err := afero.ReadDir(fsys, p)
			if err != nil {
				return stats, vfs.Wrap(vfs.Classify(err), "archive", p, err)
			}
			// Reverse push so children pop in name order.
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, path.Join(p, children[i].Name()))
			}

		case info.Mode().IsRegular():
			n, err := writeFile(zw, fsys, p, rel, info)
			if err != nil {
				return stats, err
			}
			stats.Files++
			stats.Bytes += n

		default:
			e.logger.Debug("Skipping non-regular entry", logging.Path(p), zap.Stringer("mode", info.Mode()))
		}
	}

	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("finalize archive: %w", err)
	}
	return stats, nil
}

func writeFile(zw *zip.Writer, fsys afero.Fs, p, rel string, info fs.FileInfo) (int64, error) {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, fmt.Errorf("header for %s: %w", rel, err)
	}
	header.Name = rel
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return 0, fmt.Errorf("write entry %s: %w", rel, err)
	}

	src, err := fsys.Open(p)
	if err != nil {
		return 0, vfs.Wrap(vfs.Classify(err), "archive", p, err)
	}
	defer src.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", rel, err)
	}
	return n, nil
}

type plannedEntry struct {
	file   *zip.File
	target string
}

type extractPlan struct {
	dirs  []string
	files []plannedEntry
	bytes int64
}

// Extract unpacks the archive at archivePath into dest.
//
// Every destination is computed and checked before anything is written:
// if any file entry would land on an existing path the whole extraction is
// rejected with AlreadyExists naming the first collision in archive order.
// I/O failures during the copy phase are reported but not rolled back.
func (e *Engine) Extract(ctx context.Context, fsys afero.Fs, archivePath, dest string) (Stats, error) {
	var stats Stats

	f, err := fsys.Open(archivePath)
	if err != nil {
		return stats, vfs.Wrap(vfs.Classify(err), "unarchive", archivePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return stats, vfs.Wrap(vfs.Classify(err), "unarchive", archivePath, err)
	}
	if info.IsDir() {
		return stats, vfs.Errorf(vfs.KindInvalidRequest, "unarchive", archivePath, "not an archive")
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return stats, vfs.Errorf(vfs.KindInvalidRequest, "unarchive", archivePath, "not a valid archive: %v", err)
	}
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)

	plan, err := e.scan(fsys, zr, dest)
	if err != nil {
		return stats, err
	}
	return e.commit(ctx, fsys, plan, dest)
}

// scan validates every entry of zr against dest without mutating anything.
func (e *Engine) scan(fsys afero.Fs, zr *zip.Reader, dest string) (*extractPlan, error) {
	plan := &extractPlan{}
	targets := make(map[string]bool, len(zr.File))
	parents := make(map[string]bool)
	checked := make(map[string]bool)

	for _, zf := range zr.File {
		name := strings.ReplaceAll(zf.Name, "\\", "/")
		isDir := strings.HasSuffix(name, "/") || zf.Mode().IsDir()

		target, err := vfs.Join(dest, name)
		if err != nil || !vfs.IsWithin(dest, target) {
			return nil, vfs.Errorf(vfs.KindPathEscape, "unarchive", zf.Name, "entry escapes destination")
		}
		if target == dest {
			continue
		}
		if zf.Mode()&fs.ModeSymlink != 0 {
			e.logger.Debug("Skipping symlink entry", zap.String("entry", zf.Name))
			continue
		}

		if err := claimParents(dest, target, targets, parents); err != nil {
			return nil, err
		}
		if err := checkParents(fsys, dest, target, checked); err != nil {
			return nil, err
		}

		if isDir {
			if targets[target] {
				return nil, fileAndDir(target)
			}
			parents[target] = true
			info, err := lstat(fsys, target)
			if err == nil && !info.IsDir() {
				return nil, conflict(target)
			}
			plan.dirs = append(plan.dirs, target)
			continue
		}

		if targets[target] {
			return nil, vfs.Errorf(vfs.KindInvalidRequest, "unarchive", zf.Name, "duplicate archive entry")
		}
		if parents[target] {
			return nil, fileAndDir(target)
		}
		targets[target] = true

		if len(plan.files) >= e.opts.MaxFiles {
			return nil, vfs.Errorf(vfs.KindInvalidRequest, "unarchive", "", "archive has more than %d files", e.opts.MaxFiles)
		}
		plan.bytes += int64(zf.UncompressedSize64)
		if zf.UncompressedSize64 > uint64(e.opts.MaxBytes) || plan.bytes > e.opts.MaxBytes {
			return nil, vfs.Errorf(vfs.KindInvalidRequest, "unarchive", "", "archive expands beyond %d bytes", e.opts.MaxBytes)
		}

		exists, err := afero.Exists(fsys, target)
		if err != nil {
			return nil, vfs.Wrap(vfs.Classify(err), "unarchive", target, err)
		}
		if exists {
			return nil, conflict(target)
		}
		plan.files = append(plan.files, plannedEntry{file: zf, target: target})
	}
	return plan, nil
}

// claimParents records the directories implied by target and fails when one
// of them is a file entry of the same archive.
func claimParents(dest, target string, files, parents map[string]bool) error {
	for dir := path.Dir(target); dir != dest && vfs.IsWithin(dest, dir); dir = path.Dir(dir) {
		if parents[dir] {
			return nil
		}
		if files[dir] {
			return fileAndDir(dir)
		}
		parents[dir] = true
	}
	return nil
}

func fileAndDir(p string) error {
	return vfs.Errorf(vfs.KindInvalidRequest, "unarchive", p, "archive holds both a file and a directory at this path")
}

// checkParents fails when an ancestor of target below dest exists as
// something other than a directory.
func checkParents(fsys afero.Fs, dest, target string, checked map[string]bool) error {
	for dir := path.Dir(target); dir != dest && vfs.IsWithin(dest, dir); dir = path.Dir(dir) {
		if checked[dir] {
			return nil
		}
		info, err := lstat(fsys, dir)
		if err == nil && !info.IsDir() {
			return conflict(dir)
		}
		checked[dir] = true
	}
	return nil
}

func (e *Engine) commit(ctx context.Context, fsys afero.Fs, plan *extractPlan, dest string) (Stats, error) {
	var stats Stats

	if err := fsys.MkdirAll(dest, 0o755); err != nil {
		return stats, vfs.Wrap(vfs.Classify(err), "unarchive", dest, err)
	}
	for _, dir := range plan.dirs {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return stats, vfs.Wrap(vfs.Classify(err), "unarchive", dir, err)
		}
		stats.Dirs++
	}

	for _, entry := range plan.files {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		n, err := extractFile(fsys, entry)
		if err != nil {
			return stats, err
		}
		stats.Files++
		stats.Bytes += n
	}

	e.logger.Debug("Extracted archive",
		zap.String("destination", dest),
		zap.Int("files", stats.Files),
		zap.Int64("bytes", stats.Bytes),
	)
	return stats, nil
}

func extractFile(fsys afero.Fs, entry plannedEntry) (int64, error) {
	if err := fsys.MkdirAll(path.Dir(entry.target), 0o755); err != nil {
		return 0, vfs.Wrap(vfs.Classify(err), "unarchive", entry.target, err)
	}

	src, err := entry.file.Open()
	if err != nil {
		return 0, vfs.Errorf(vfs.KindInvalidRequest, "unarchive", entry.file.Name, "read entry: %v", err)
	}
	defer src.Close()

	// O_EXCL guards against files created after the scan.
	dst, err := fsys.OpenFile(entry.target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, vfs.Wrap(vfs.Classify(err), "unarchive", entry.target, err)
	}

	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, vfs.Wrap(vfs.KindInternal, "unarchive", entry.target, err)
	}

	if mod := entry.file.Modified; !mod.IsZero() {
		_ = fsys.Chtimes(entry.target, mod, mod)
	}
	return n, nil
}

func conflict(p string) error {
	return vfs.Errorf(vfs.KindAlreadyExists, "unarchive", p, "file would be overwritten by unarchive")
}

func lstat(fsys afero.Fs, p string) (fs.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(p)
		return info, err
	}
	return fsys.Stat(p)
}
