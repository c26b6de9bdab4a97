package store

// Row is one result of Find, ListChildren or ListAll.
type Row struct {
	// Key is the logical row key, when known to the adapter.
	Key string

	// Properties is the row's property map.
	Properties Properties
}

// Rows is a lazy, finite, non-restartable sequence of rows. It follows the
// database/sql cursor shape: call Next until it returns false, then check
// Err. Callers that do not drain the sequence must call Close, or the
// backend cursor leaks. Close is idempotent.
type Rows interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// RowsFromSlice returns a Rows over an already-materialized result set.
func RowsFromSlice(rows []Row) Rows {
	return &sliceRows{rows: rows, pos: -1}
}

// CountRows returns the one-shot synthetic sequence produced by the count
// fast path: exactly one row whose CountField property carries the count.
func CountRows(count int64) Rows {
	return RowsFromSlice([]Row{{Properties: Properties{CountField: count}}})
}

type sliceRows struct {
	rows   []Row
	pos    int
	closed bool
}

func (r *sliceRows) Next() bool {
	if r.closed || r.pos+1 >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceRows) Row() Row {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return Row{}
	}
	return r.rows[r.pos]
}

func (r *sliceRows) Err() error { return nil }

func (r *sliceRows) Close() error {
	r.closed = true
	return nil
}
