package snapshot

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/syftvault/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnoreLines keeps restore scratch files out of a backup taken from
// a directory that was also used as a restore destination.
var defaultIgnoreLines = []string{
	"*.syftvault.tmp.*",
}

// IgnoreList applies gitignore-style rules read from an optional file.
// Rules are matched against paths relative to the file's directory.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

// LoadIgnoreList compiles the default rules plus the lines of path, if it
// exists. An empty path yields only the defaults.
func LoadIgnoreList(path string) *IgnoreList {
	lines := append([]string{}, defaultIgnoreLines...)
	l := &IgnoreList{}

	if path != "" {
		abs, err := utils.ResolvePath(path)
		if err != nil {
			slog.Warn("ignore file path", "path", path, "error", err)
			abs = path
		}
		l.baseDir = filepath.ToSlash(filepath.Dir(abs))

		if utils.FileExists(abs) {
			extra, err := readIgnoreLines(abs)
			if err != nil {
				slog.Warn("failed to read ignore file", "path", abs, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", abs, "rules", len(extra))
				lines = append(lines, extra...)
			}
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(lines...)
	return l
}

func readIgnoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// ShouldIgnore expects a slash-separated path.
func (l *IgnoreList) ShouldIgnore(path string) bool {
	if l == nil || l.ignore == nil {
		return false
	}
	rel := path
	if l.baseDir != "" && strings.HasPrefix(path, l.baseDir+"/") {
		rel = strings.TrimPrefix(path, l.baseDir+"/")
	}
	return l.ignore.MatchesPath(rel)
}
