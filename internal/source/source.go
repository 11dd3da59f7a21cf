package source

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMaxFileBytes skips generated bundles and data dumps.
const DefaultMaxFileBytes = 512 * 1024

// DefaultSkipDirs are never descended into.
var DefaultSkipDirs = []string{".git", ".hg", ".svn", "vendor", "node_modules", "dist", "build", ".idea", ".vscode"}

var ErrNoFiles = errors.New("no source files found")

type Options struct {
	MaxFileBytes int64
	SkipDirs     []string
	// Extensions restricts the walk to these suffixes (".go", ".ts"). Empty means all text files.
	Extensions []string
}

// Stats summarises one walk.
type Stats struct {
	Files   int   `json:"files"`
	Skipped int   `json:"skipped"`
	Bytes   int64 `json:"bytes"`
}

// Concatenate walks root in lexical order and emits every text file as
// "// File: <relative path>\n<content>\n". Binary, oversize and unreadable
// files are skipped and counted.
func Concatenate(root string, opts Options) (string, Stats, error) {
	var stats Stats
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	skip := opts.SkipDirs
	if skip == nil {
		skip = DefaultSkipDirs
	}
	root = expandHome(root)

	info, err := os.Stat(root)
	if err != nil {
		return "", stats, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return "", stats, fmt.Errorf("%s is not a directory", root)
	}

	var sb strings.Builder
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			stats.Skipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && contains(skip, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !matchesExt(opts.Extensions, d.Name()) {
			return nil
		}

		fi, err := d.Info()
		if err != nil || fi.Size() > opts.MaxFileBytes {
			stats.Skipped++
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !isText(data) {
			stats.Skipped++
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		sb.WriteString("// File: ")
		sb.WriteString(filepath.ToSlash(rel))
		sb.WriteString("\n")
		sb.Write(data)
		if len(data) == 0 || data[len(data)-1] != '\n' {
			sb.WriteString("\n")
		}
		stats.Files++
		stats.Bytes += int64(len(data))
		return nil
	})
	if err != nil {
		return "", stats, fmt.Errorf("walk %s: %w", root, err)
	}
	if stats.Files == 0 {
		return "", stats, ErrNoFiles
	}
	return sb.String(), stats, nil
}

// isText rejects content with NUL bytes or invalid UTF-8.
func isText(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	return utf8.Valid(data)
}

func matchesExt(exts []string, name string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
