package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

// gcsHost is the public object host Google Cloud Storage serves buckets on.
const gcsHost = "storage.googleapis.com"

// splitGCSBase recognizes https://storage.googleapis.com/<bucket>/<prefix>
// bases and splits them into bucket and object prefix.
func splitGCSBase(base string) (bucket, prefix string, ok bool) {
	u, err := url.Parse(base)
	if err != nil || u.Host != gcsHost {
		return "", "", false
	}
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return "", "", false
	}
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, true
}

// gcsListFactors builds the catalog by listing the bucket's objects under
// the market prefix, then pulling one exemplar file per category through the
// cache and reading its column names. Public buckets need no credentials.
func (r *Remote) gcsListFactors(ctx context.Context, bucket, prefix, market, timeframe, category string) ([]FactorInfo, error) {
	svc, err := gcs.NewService(ctx, option.WithoutAuthentication())
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	objPrefix := path.Join(prefix, market, "instrument") + "/"
	suffix := "/" + timeframe + "/"

	// One exemplar locator per category is enough for column discovery.
	exemplars := make(map[string]Locator)
	err = svc.Objects.List(bucket).Prefix(objPrefix).Context(ctx).Pages(ctx, func(page *gcs.Objects) error {
		for _, obj := range page.Items {
			rel := strings.TrimPrefix(obj.Name, objPrefix)
			// rel is TICKER/<timeframe>/<category>.parquet
			idx := strings.Index(rel, suffix)
			if idx < 0 || !strings.HasSuffix(rel, ".parquet") {
				continue
			}
			ticker := rel[:idx]
			cat := strings.TrimSuffix(rel[idx+len(suffix):], ".parquet")
			if strings.Contains(ticker, "/") || strings.Contains(cat, "/") {
				continue
			}
			if category != "" && cat != category {
				continue
			}
			if _, ok := exemplars[cat]; !ok {
				exemplars[cat] = Locator{
					Market:    market,
					Ticker:    ticker,
					Timeframe: timeframe,
					Category:  cat,
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list bucket %s: %w", bucket, err)
	}

	var out []FactorInfo
	for cat, loc := range exemplars {
		columns, err := r.Columns(ctx, loc)
		if err != nil {
			return nil, fmt.Errorf("inspect category %s: %w", cat, err)
		}
		for _, c := range columns {
			out = append(out, FactorInfo{Name: c, Category: cat})
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
