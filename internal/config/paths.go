package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Paths contains the filesystem locations the service writes to. All paths
// resolve relative to the working directory, so a deployment stays
// self-contained wherever it is unpacked.
type Paths struct {
	WorkDir    string
	DataDir    string
	CacheDir   string
	ReportsDir string
	LogsDir    string
}

// ResolvePaths builds the path set from the configuration. Relative
// directories are anchored at the working directory; the cache directory
// falls back to the user cache when unset.
func (c *Config) ResolvePaths() (*Paths, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	anchor := func(dir string) string {
		if dir == "" || filepath.IsAbs(dir) {
			return dir
		}
		return filepath.Join(workDir, dir)
	}

	p := &Paths{
		WorkDir:    workDir,
		ReportsDir: anchor(c.Data.ReportsDir),
		LogsDir:    anchor(filepath.Dir(c.Logging.FilePath)),
	}

	if !c.Data.IsRemote() {
		p.DataDir = anchor(c.Data.BaseURL)
	}

	cacheDir := c.Data.CacheDir
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		cacheDir = filepath.Join(base, AppName)
	}
	p.CacheDir = anchor(cacheDir)

	return p, nil
}

// EnsureDirectories creates every directory the service writes to.
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.CacheDir,
		p.ReportsDir,
		p.LogsDir,
	}

	logger := slog.Default()
	for _, dir := range directories {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
		logger.Debug("ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// ReportPath returns the location a report file is written to.
func (p *Paths) ReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// TimestampedReportPath names a report file after its study and start time,
// e.g. studies/momentum_20240131T150405.csv.
func (p *Paths) TimestampedReportPath(name, ext string, at time.Time) string {
	return filepath.Join(p.ReportsDir, fmt.Sprintf("%s_%s.%s", name, at.UTC().Format("20060102T150405"), ext))
}

// LogPath returns the location of a log file.
func (p *Paths) LogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
