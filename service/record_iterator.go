package service

import (
	"context"
	"encoding/json"
)

// PageFetcher returns the page of endpoint starting at cursor
type PageFetcher func(ctx context.Context, endpoint Endpoint, cursor string) (Page, error)

// RecordIterator yields the records of a paginated endpoint in server order.
// Pages are fetched on demand, the iterator can only be walked once.
//
//	it := client.FetchAll(ctx, endpoint)
//	for it.Next() {
//		var r record
//		if err := it.Decode(&r); err != nil { ... }
//	}
//	if err := it.Err(); err != nil { ... }
type RecordIterator struct {
	ctx      context.Context
	endpoint Endpoint
	fetch    PageFetcher

	items   []json.RawMessage
	pos     int
	cursor  string
	last    bool
	current json.RawMessage
	err     error
}

func NewRecordIterator(ctx context.Context, endpoint Endpoint, fetch PageFetcher) *RecordIterator {
	return &RecordIterator{
		ctx:      ctx,
		endpoint: endpoint,
		fetch:    fetch,
	}
}

// Next moves to the next record, it returns false at the end or on error
func (it *RecordIterator) Next() bool {
	if it.err != nil {
		return false
	}

	for it.pos >= len(it.items) {
		if it.last {
			it.current = nil
			return false
		}

		page, err := it.fetch(it.ctx, it.endpoint, it.cursor)
		if err != nil {
			it.err = err
			it.current = nil
			return false
		}

		it.items = page.Items
		it.pos = 0
		it.cursor = page.NextCursor
		it.last = page.NextCursor == ""
	}

	it.current = it.items[it.pos]
	it.pos++

	return true
}

// Record returns the raw current record
func (it *RecordIterator) Record() json.RawMessage {
	return it.current
}

// Decode unmarshals the current record into v
func (it *RecordIterator) Decode(v interface{}) error {
	if err := json.Unmarshal(it.current, v); err != nil {
		return malformed(it.endpoint, err)
	}

	return nil
}

// Err returns the error that stopped the iteration, if any
func (it *RecordIterator) Err() error {
	return it.err
}
