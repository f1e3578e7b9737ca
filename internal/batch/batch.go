// Package batch enumerates URL targets from batch list files. Batch
// directories are an external collaborator: they are read once at the
// start of a run and never written.
package batch

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"oapmon/internal/logger"
)

// Scan errors
var (
	ErrNoBatchRoot = errors.New("batch root does not exist")
)

// backupSuffixes are editor/operator leftovers skipped during scans
var backupSuffixes = []string{".bak", ".orig", ".old", ".tmp"}

// dateBackupPattern matches date-suffixed copies like urls.txt.20250623
var dateBackupPattern = regexp.MustCompile(`\.\d{8}$`)

// Scanner walks a root directory for batch subdirectories whose name
// starts with Prefix and collects the URLs listed in their files.
// Files hold one URL per line; blank lines and #-comments are ignored.
type Scanner struct {
	Fs     afero.Fs
	Root   string
	Prefix string
}

// Scan returns the de-duplicated, sorted list of URLs across all batch
// files. Order is stable so reports stay deterministic between runs.
func (s *Scanner) Scan() ([]string, error) {
	log := logger.WithComponent("batch_scanner")

	if ok, err := afero.DirExists(s.Fs, s.Root); err != nil {
		return nil, fmt.Errorf("batch root %s: %w", s.Root, err)
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBatchRoot, s.Root)
	}

	seen := make(map[string]bool)
	var urls []string

	err := afero.Walk(s.Fs, s.Root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		dir := filepath.Base(filepath.Dir(path))
		if s.Prefix != "" && !strings.HasPrefix(dir, s.Prefix) {
			return nil
		}
		if IsBackupFile(info.Name()) {
			log.Debug().Str("file", path).Msg("skipping backup file")
			return nil
		}

		fileURLs, err := s.readList(path)
		if err != nil {
			return fmt.Errorf("read batch file %s: %w", path, err)
		}
		log.Debug().
			Str("file", path).
			Int("urls", len(fileURLs)).
			Msg("batch file loaded")

		for _, u := range fileURLs {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(urls)
	return urls, nil
}

// readList parses one line-delimited URL list
func (s *Scanner) readList(path string) ([]string, error) {
	f, err := s.Fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// IsBackupFile reports whether a filename matches common backup
// patterns: suffix conventions, date-stamped copies, tilde files, and
// emacs-style #file# autosaves
func IsBackupFile(name string) bool {
	if dateBackupPattern.MatchString(name) {
		return true
	}
	if strings.HasSuffix(name, "~") {
		return true
	}
	if strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#") {
		return true
	}
	lower := strings.ToLower(name)
	for _, suffix := range backupSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
