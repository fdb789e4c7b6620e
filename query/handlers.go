package query

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-changelog-hooks/core"
)

type LedgerReader interface {
	Lookup(ctx context.Context, key core.EventKey) (core.ProcessedEventRecord, bool, error)
}

type LookupProcessedEventQuery struct {
	reader LedgerReader
}

func NewLookupProcessedEventQuery(reader LedgerReader) *LookupProcessedEventQuery {
	return &LookupProcessedEventQuery{reader: reader}
}

func (q *LookupProcessedEventQuery) Query(
	ctx context.Context,
	msg LookupProcessedEventMessage,
) (core.ProcessedEventRecord, error) {
	if q == nil || q.reader == nil {
		return core.ProcessedEventRecord{}, queryDependencyError("query: ledger reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.ProcessedEventRecord{}, err
	}
	key := msg.Key()
	record, found, err := q.reader.Lookup(ctx, key)
	if err != nil {
		return core.ProcessedEventRecord{}, err
	}
	if !found {
		return core.ProcessedEventRecord{}, queryNotFoundError(key)
	}
	return record, nil
}

var _ gocmd.Querier[LookupProcessedEventMessage, core.ProcessedEventRecord] = (*LookupProcessedEventQuery)(nil)
