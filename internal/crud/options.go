package crud

import (
	"fmt"
	"math"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	DefaultPage  int64 = 1
	DefaultLimit int64 = 10
)

// SortField is one sort key. A slice keeps the key order, which a map cannot.
type SortField struct {
	Field string
	Desc  bool
}

// ListOptions controls pagination and ordering for GetAll.
type ListOptions struct {
	Page  int64
	Limit int64
	Sort  []SortField
}

// Normalize replaces out-of-range page/limit values with the defaults.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = DefaultPage
	}
	if o.Limit < 1 {
		o.Limit = DefaultLimit
	}
	return o
}

// Skip is the number of matches to skip: (page-1)*limit, never negative.
// Pages past the int64 range saturate at the last whole page.
func (o ListOptions) Skip() int64 {
	n := o.Normalize()
	if maxPages := math.MaxInt64 / n.Limit; n.Page-1 > maxPages {
		return maxPages * n.Limit
	}
	return (n.Page - 1) * n.Limit
}

// SortDoc renders the sort keys as an ordered bson document, nil when unsorted.
func (o ListOptions) SortDoc() bson.D {
	if len(o.Sort) == 0 {
		return nil
	}
	d := make(bson.D, 0, len(o.Sort))
	for _, s := range o.Sort {
		dir := 1
		if s.Desc {
			dir = -1
		}
		d = append(d, bson.E{Key: s.Field, Value: dir})
	}
	return d
}

// ParseSort parses "name,-createdAt" or "name:asc,createdAt:desc".
// Directions may be asc, desc, ascending, descending, 1 or -1.
func ParseSort(raw string) ([]SortField, error) {
	var out []SortField
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, hasDir := strings.Cut(part, ":")
		field = strings.TrimSpace(field)
		sf := SortField{Field: field}
		if strings.HasPrefix(field, "-") {
			sf.Field = strings.TrimPrefix(field, "-")
			sf.Desc = true
		}
		if hasDir {
			switch strings.ToLower(strings.TrimSpace(dir)) {
			case "asc", "ascending", "1":
				sf.Desc = false
			case "desc", "descending", "-1":
				sf.Desc = true
			default:
				return nil, fmt.Errorf("sort %q: unknown direction %q", field, dir)
			}
		}
		if sf.Field == "" {
			return nil, fmt.Errorf("sort: empty field in %q", raw)
		}
		out = append(out, sf)
	}
	return out, nil
}
