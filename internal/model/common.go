package model

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// Opt is a tri-state optional field used by Updates records:
//   - zero value (Set == false)         -> absent, keep the current value
//   - Set == true, Value != nil         -> present(Some(v)), set the field
//   - Set == true, Value == nil         -> present(None), clear a nullable field
type Opt[T any] struct {
	Set   bool
	Value *T
}

// SetTo returns an Opt that sets the field to v.
func SetTo[T any](v T) Opt[T] { return Opt[T]{Set: true, Value: &v} }

// ClearOpt returns an Opt that clears a nullable field.
func ClearOpt[T any]() Opt[T] { return Opt[T]{Set: true, Value: nil} }

// Get returns the value and true when the Opt carries a value. It returns
// false both for an absent field and for a cleared one (Set with a nil
// Value).
func (o Opt[T]) Get() (T, bool) {
	var zero T
	if !o.Set || o.Value == nil {
		return zero, false
	}
	return *o.Value, true
}

// SortKey pairs a per-entity sort key name with direction. An ordered list
// of SortKeys forms ListOptions.Sort; a tie-breaker on the primary key is
// appended implicitly by each Store implementation.
type SortKey struct {
	Key       string
	Ascending bool
}

// ListOptions controls listing, ordering, and cursor pagination for any
// entity's list operation.
type ListOptions struct {
	Offset    int
	Limit     int  // 0 or absent = no limit
	Sort      []SortKey
	CursorMax int    // when > 0, list returns at most min(CursorMax, remaining Limit) items
	Cursor    string // opaque cursor from a previous page's Page.NextCursor; empty starts at Offset
}

// Cursor encodes an opaque resumption point for cursored pagination. Only
// Offset is carried today; it is wrapped in a struct (rather than a bare
// int) so the wire representation can grow without breaking existing
// cursors.
type Cursor struct {
	Offset int
}

// Encode returns the cursor's opaque string form.
func (c Cursor) Encode() string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(c.Offset)))
}

// DecodeCursor parses a cursor string previously returned by Encode.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("model: invalid cursor: %w", err)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil {
		return Cursor{}, fmt.Errorf("model: invalid cursor: %w", err)
	}
	return Cursor{Offset: offset}, nil
}

// Page is the result of one cursored list call.
type Page[T any] struct {
	Items      []T
	NextCursor *string // absent (nil) means terminal: no more results
}

// ResolveWindow computes the [offset, offset+n) window for one list call
// given the caller's ListOptions and a decoded cursor (nil on the first
// page), applying the "up to min(cursor_max, remaining_limit)" rule. Store
// implementations call this when ListOptions.CursorMax > 0, then fetch n+1
// rows to detect whether a further page remains.
func ResolveWindow(opts ListOptions, cursor *Cursor) (offset, n int) {
	offset = opts.Offset
	if cursor != nil {
		offset = cursor.Offset
	}
	n = opts.CursorMax
	if opts.Limit > 0 {
		remaining := opts.Limit - (offset - opts.Offset)
		if remaining < 0 {
			remaining = 0
		}
		if n == 0 || remaining < n {
			n = remaining
		}
	}
	return offset, n
}
