package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edges-ai/vquant/frame"
)

// Local is a Store over a directory tree of Parquet category files.
type Local struct {
	root string
	db   *DB
}

// NewLocal opens a local store rooted at dir, creating it when absent.
func NewLocal(dir string) (*Local, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}

	db, err := OpenDB()
	if err != nil {
		return nil, err
	}

	return &Local{root: root, db: db}, nil
}

// Root returns the absolute directory the store is rooted at.
func (l *Local) Root() string {
	return l.root
}

// Path returns the file the locator addresses.
func (l *Local) Path(loc Locator) string {
	return filepath.Join(l.root, loc.Market, "instrument",
		strings.ToUpper(loc.Ticker), loc.Timeframe, loc.Category+".parquet")
}

// Load reads the named value columns for one locator. A nil columns slice
// loads every value column the file has.
func (l *Local) Load(ctx context.Context, loc Locator, columns []string) (map[string]*frame.Series, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	path := l.Path(loc)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	available, err := l.db.Describe(ctx, path)
	if err != nil {
		return nil, err
	}

	if len(columns) == 0 {
		columns = valueColumns(available)
	} else {
		for _, c := range columns {
			if !containsString(available, c) {
				return nil, fmt.Errorf("%w: %s in %s", ErrColumnNotFound, c, path)
			}
		}
	}

	dates, values, err := l.db.ReadColumns(ctx, path, columns)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*frame.Series, len(columns))
	for _, c := range columns {
		s, err := frame.NewSeries(dates, values[c])
		if err != nil {
			return nil, fmt.Errorf("column %s of %s: %w", c, path, err)
		}
		out[c] = s
	}
	return out, nil
}

// Columns lists the value columns of the locator's file.
func (l *Local) Columns(ctx context.Context, loc Locator) ([]string, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	path := l.Path(loc)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	available, err := l.db.Describe(ctx, path)
	if err != nil {
		return nil, err
	}
	return valueColumns(available), nil
}

// Save upserts one column, merging on date. Incoming observations win on
// conflict; the stored file ends up sorted by date.
func (l *Local) Save(ctx context.Context, loc Locator, column string, series *frame.Series) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if series == nil || series.IsEmpty() {
		return fmt.Errorf("save %s: empty series", loc)
	}

	path := l.Path(loc)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create instrument directory: %w", err)
	}

	var existing []string
	if _, err := os.Stat(path); err == nil {
		existing, err = l.db.Describe(ctx, path)
		if err != nil {
			return err
		}
	}

	return l.db.UpsertColumn(ctx, path, column, series.Dates(), series.Values(), existing)
}

// ListFactors walks the market tree and reports every (factor, category)
// pair stored for the timeframe. category narrows the listing to one file
// per instrument; the ohlcv category is part of the catalog like any other.
func (l *Local) ListFactors(ctx context.Context, market, timeframe, category string) ([]FactorInfo, error) {
	if !IsPathToken(market) || !IsPathToken(timeframe) {
		return nil, fmt.Errorf("invalid market %q or timeframe %q", market, timeframe)
	}
	if category != "" && !IsIdent(category) {
		return nil, fmt.Errorf("invalid category %q", category)
	}

	instruments := filepath.Join(l.root, market, "instrument")
	entries, err := os.ReadDir(instruments)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list instruments: %w", err)
	}

	seen := make(map[FactorInfo]bool)
	var out []FactorInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(instruments, entry.Name(), timeframe)
		files, err := os.ReadDir(dir)
		if err != nil {
			continue // instrument has no data for this timeframe
		}

		for _, f := range files {
			name := f.Name()
			if !strings.HasSuffix(name, ".parquet") {
				continue
			}
			cat := strings.TrimSuffix(name, ".parquet")
			if category != "" && cat != category {
				continue
			}

			columns, err := l.db.Describe(ctx, filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			for _, c := range valueColumns(columns) {
				info := FactorInfo{Name: c, Category: cat}
				if !seen[info] {
					seen[info] = true
					out = append(out, info)
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Close releases the embedded database session.
func (l *Local) Close() error {
	return l.db.Close()
}

func valueColumns(all []string) []string {
	out := make([]string, 0, len(all))
	for _, c := range all {
		if c != "date" {
			out = append(out, c)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ Store = (*Local)(nil)
