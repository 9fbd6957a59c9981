package sqlite

import (
	"strings"

	"github.com/sylvia-iot/broker-core/internal/errors"
	"github.com/sylvia-iot/broker-core/internal/model"
)

// buildOrderBy translates caller sort keys to SQL column names via allowed,
// always appending tieBreaker ascending so ordering is stable and listing
// is gap-free under concurrent writes.
func buildOrderBy(sort []model.SortKey, allowed map[string]string, tieBreaker string) string {
	var parts []string
	for _, sk := range sort {
		col, ok := allowed[sk.Key]
		if !ok {
			continue
		}
		dir := "DESC"
		if sk.Ascending {
			dir = "ASC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, tieBreaker+" ASC")
	return strings.Join(parts, ", ")
}

// limitOrAll returns limit, or a very large number when the caller asked for
// no bound (limit <= 0), since SQLite's LIMIT clause has no "no limit"
// sentinel other than a negative value that some builds disallow as a bind
// parameter.
func limitOrAll(limit int) int64 {
	if limit <= 0 {
		return 1 << 62
	}
	return int64(limit)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure from
// modernc.org/sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// listWindow is the resolved [offset, offset+fetchLimit) SQL window for one
// List call. When cursored, fetchLimit is n+1 so the caller can fetch one
// extra row to detect whether a further page remains.
type listWindow struct {
	offset     int
	fetchLimit int64
	cursored   bool
	n          int
}

// resolveListWindow decodes opts.Cursor (if set) and computes the SQL
// window to fetch. Cursored pagination only engages when opts.CursorMax > 0;
// otherwise it falls back to a plain Offset/Limit window with no cursor.
func resolveListWindow(opts model.ListOptions) (listWindow, error) {
	if opts.CursorMax <= 0 {
		return listWindow{offset: opts.Offset, fetchLimit: limitOrAll(opts.Limit)}, nil
	}
	var cursor *model.Cursor
	if opts.Cursor != "" {
		c, err := model.DecodeCursor(opts.Cursor)
		if err != nil {
			return listWindow{}, errors.NewValidation(errors.CodeParamInvalid, "invalid list cursor").WithCause(err)
		}
		cursor = &c
	}
	offset, n := model.ResolveWindow(opts, cursor)
	return listWindow{offset: offset, fetchLimit: int64(n) + 1, cursored: true, n: n}, nil
}

// trimPage trims items to at most w.n entries and returns the cursor for
// the next page, or nil when this page is terminal.
func trimPage[T any](w listWindow, items []T) ([]T, *string) {
	if !w.cursored || len(items) <= w.n {
		return items, nil
	}
	items = items[:w.n]
	cur := model.Cursor{Offset: w.offset + w.n}.Encode()
	return items, &cur
}
