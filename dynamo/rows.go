package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/efroese/sparsemapcontent/store"
)

// pageFetcher yields one backend page per call. done means no more pages.
type pageFetcher interface {
	next(ctx context.Context) (items []map[string]types.AttributeValue, done bool, err error)
}

type scanPager struct {
	p *dynamodb.ScanPaginator
}

func (s *scanPager) next(ctx context.Context) ([]map[string]types.AttributeValue, bool, error) {
	if !s.p.HasMorePages() {
		return nil, true, nil
	}
	page, err := s.p.NextPage(ctx)
	if err != nil {
		return nil, true, err
	}
	return page.Items, !s.p.HasMorePages(), nil
}

type queryPager struct {
	p *dynamodb.QueryPaginator
}

func (q *queryPager) next(ctx context.Context) ([]map[string]types.AttributeValue, bool, error) {
	if !q.p.HasMorePages() {
		return nil, true, nil
	}
	page, err := q.p.NextPage(ctx)
	if err != nil {
		return nil, true, err
	}
	return page.Items, !q.p.HasMorePages(), nil
}

// lazyRows pulls pages on demand. Close stops fetching; the underlying
// paginator holds no server-side state beyond the last evaluated key, so
// dropping it releases the cursor.
type lazyRows struct {
	ctx    context.Context
	pager  pageFetcher
	buf    []store.Row
	pos    int
	done   bool
	closed bool
	err    error
}

func newLazyRows(ctx context.Context, pager pageFetcher) *lazyRows {
	return &lazyRows{ctx: ctx, pager: pager, pos: -1}
}

func (r *lazyRows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	r.pos++
	for r.pos >= len(r.buf) {
		if r.done {
			return false
		}
		items, done, err := r.pager.next(r.ctx)
		if err != nil {
			r.err = err
			return false
		}
		r.done = done
		r.buf = r.buf[:0]
		r.pos = 0
		for _, item := range items {
			r.buf = append(r.buf, fromItem(item))
		}
		if len(r.buf) == 0 && done {
			return false
		}
	}
	return true
}

func (r *lazyRows) Row() store.Row {
	if r.pos < 0 || r.pos >= len(r.buf) {
		return store.Row{}
	}
	return r.buf[r.pos]
}

func (r *lazyRows) Err() error { return r.err }

func (r *lazyRows) Close() error {
	r.closed = true
	r.done = true
	r.buf = nil
	return nil
}
