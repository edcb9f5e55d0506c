package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DB is an embedded DuckDB session used for Parquet access. All reads and
// writes go through SQL (read_parquet, COPY ... TO), which keeps the file
// format handling inside the engine that produced the files.
type DB struct {
	db *sql.DB
}

// OpenDB opens an in-memory DuckDB session. DuckDB runs in-process, so the
// session is capped at one connection and statements serialize behind it.
func OpenDB() (*DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	return &DB{db: db}, nil
}

// Close releases the session.
func (d *DB) Close() error {
	return d.db.Close()
}

// Describe returns the column names of a Parquet file in schema order.
func (d *DB) Describe(ctx context.Context, path string) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT column_name FROM (DESCRIBE SELECT * FROM read_parquet(%s))",
		quoteString(path),
	)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("describe parquet %s: %w", path, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s: %w", path, err)
	}

	return columns, nil
}

// ReadColumns reads the date index and the named value columns from a
// Parquet file, ordered by date. NULL cells come back as NaN.
func (d *DB) ReadColumns(ctx context.Context, path string, columns []string) ([]time.Time, map[string][]float64, error) {
	selects := make([]string, 0, len(columns)+1)
	selects = append(selects, `CAST("date" AS TIMESTAMP) AS "date"`)
	for _, c := range columns {
		if err := validColumn(c); err != nil {
			return nil, nil, err
		}
		selects = append(selects, quoteIdent(c))
	}

	query := fmt.Sprintf(
		`SELECT %s FROM read_parquet(%s) ORDER BY "date"`,
		strings.Join(selects, ", "), quoteString(path),
	)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	defer rows.Close()

	var dates []time.Time
	values := make(map[string][]float64, len(columns))
	for _, c := range columns {
		values[c] = nil
	}

	scan := make([]interface{}, len(columns)+1)
	for rows.Next() {
		var date time.Time
		cells := make([]sql.NullFloat64, len(columns))
		scan[0] = &date
		for i := range cells {
			scan[i+1] = &cells[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, nil, fmt.Errorf("scan row of %s: %w", path, err)
		}

		dates = append(dates, date.UTC())
		for i, c := range columns {
			v := math.NaN()
			if cells[i].Valid {
				v = cells[i].Float64
			}
			values[c] = append(values[c], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows of %s: %w", path, err)
	}

	return dates, values, nil
}

// UpsertColumn writes one column into a Parquet file, merging on date when
// the file already holds data. existing lists the file's current columns
// (date included); nil means the file does not exist yet. Incoming values
// win on date conflicts and the result is sorted by date. NaN values are
// stored as NULL.
func (d *DB) UpsertColumn(ctx context.Context, path, column string, dates []time.Time, values []float64, existing []string) error {
	if err := validColumn(column); err != nil {
		return err
	}
	if len(dates) != len(values) {
		return fmt.Errorf("upsert %s: dates/values length mismatch: %d vs %d", path, len(dates), len(values))
	}

	// The temp tables and the COPY must share one session.
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire duckdb session: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx,
		`CREATE OR REPLACE TEMP TABLE incoming ("date" DATE, "value" DOUBLE)`,
	); err != nil {
		return fmt.Errorf("stage incoming rows: %w", err)
	}

	stmt, err := conn.PrepareContext(ctx,
		`INSERT INTO incoming VALUES (CAST(? AS DATE), ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare staging insert: %w", err)
	}
	for i, date := range dates {
		var v interface{}
		if !math.IsNaN(values[i]) {
			v = values[i]
		}
		if _, err := stmt.ExecContext(ctx, date.UTC().Format("2006-01-02"), v); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("stage row %d: %w", i, err)
		}
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close staging insert: %w", err)
	}

	var query string
	if existing == nil {
		query = fmt.Sprintf(
			`COPY (SELECT "date", "value" AS %s FROM incoming ORDER BY "date") TO %s (FORMAT PARQUET)`,
			quoteIdent(column), quoteString(path),
		)
	} else {
		// Materialize the current file before overwriting it.
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(
			`CREATE OR REPLACE TEMP TABLE current_data AS SELECT * FROM read_parquet(%s)`,
			quoteString(path),
		)); err != nil {
			return fmt.Errorf("load current data of %s: %w", path, err)
		}

		selects := []string{`COALESCE(e."date", i."date") AS "date"`}
		hasColumn := false
		for _, c := range existing {
			if c == column {
				hasColumn = true
				continue
			}
			if c == "date" {
				continue
			}
			if err := validColumn(c); err != nil {
				return fmt.Errorf("existing file %s: %w", path, err)
			}
			selects = append(selects, fmt.Sprintf(`e.%s AS %s`, quoteIdent(c), quoteIdent(c)))
		}
		if hasColumn {
			selects = append(selects, fmt.Sprintf(`COALESCE(i."value", e.%s) AS %s`, quoteIdent(column), quoteIdent(column)))
		} else {
			selects = append(selects, fmt.Sprintf(`i."value" AS %s`, quoteIdent(column)))
		}

		query = fmt.Sprintf(
			`COPY (SELECT %s FROM current_data e FULL OUTER JOIN incoming i ON e."date" = i."date" ORDER BY 1) TO %s (FORMAT PARQUET)`,
			strings.Join(selects, ", "), quoteString(path),
		)
	}

	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}

	return nil
}

// validColumn guards column names spliced into SQL. The date index is
// managed by the store and cannot be written directly.
func validColumn(name string) error {
	if name == "date" {
		return fmt.Errorf("column %q is reserved", name)
	}
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid column name %q", name)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
