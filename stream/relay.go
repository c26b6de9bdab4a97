// Package stream relays DynamoDB Streams records to a change listener, so
// external indexers can consume row mutations out-of-process. It is
// designed to run as an AWS Lambda handler attached to the row tables.
package stream

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/efroese/sparsemapcontent/authorizable"
	"github.com/efroese/sparsemapcontent/dynamo"
	"github.com/efroese/sparsemapcontent/store"
)

// Relay translates stream records into listener calls. Zones maps a table
// suffix (the lowercased column family, e.g. "au") to the zone tag passed
// to the listener; records from unmapped tables are skipped.
type Relay struct {
	listener store.Listener
	zones    map[string]string
	logger   *slog.Logger
}

// NewRelay creates a Relay. A nil logger falls back to slog.Default().
func NewRelay(listener store.Listener, zones map[string]string, logger *slog.Logger) *Relay {
	if listener == nil {
		listener = store.NopListener
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		listener: listener,
		zones:    zones,
		logger:   logger,
	}
}

// HandleChange processes one batch of stream records. This function is
// designed to be used as an AWS Lambda handler. A record that cannot be
// attributed to a known table is logged and skipped, not retried.
func (r *Relay) HandleChange(_ context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		r.processRecord(record)
	}
	return nil
}

func (r *Relay) processRecord(record events.DynamoDBEventRecord) {
	zone, ok := r.zones[tableSuffix(record.EventSourceArn)]
	if !ok {
		r.logger.Warn("skipping record from unmapped table",
			"eventID", record.EventID,
			"source", record.EventSourceArn,
		)
		return
	}

	newImage := imageToProperties(record.Change.NewImage)
	oldImage := imageToProperties(record.Change.OldImage)

	switch record.EventName {
	case "INSERT":
		id, actor := identify(newImage)
		r.listener.OnUpdate(zone, id, actor, true, nil)
	case "MODIFY":
		id, actor := identify(newImage)
		r.listener.OnUpdate(zone, id, actor, false, oldImage)
	case "REMOVE":
		id, actor := identify(oldImage)
		r.listener.OnDelete(zone, id, actor, oldImage)
	default:
		r.logger.Warn("skipping record with unknown event name",
			"eventID", record.EventID,
			"eventName", record.EventName,
		)
	}
}

// identify pulls the logical row key and last acting user out of an
// image.
func identify(props store.Properties) (id, actor string) {
	id, _ = props[store.KeyField].(string)
	actor, _ = props[authorizable.LastModifiedByField].(string)
	if actor == "" {
		actor, _ = props[authorizable.CreatedByField].(string)
	}
	return id, actor
}

// tableSuffix extracts the column-family part of a stream source ARN,
// shaped arn:aws:dynamodb:...:table/<prefix>_<family>/stream/<ts>.
func tableSuffix(arn string) string {
	parts := strings.Split(arn, "/")
	if len(parts) < 2 {
		return ""
	}
	table := parts[1]
	if i := strings.LastIndex(table, "_"); i >= 0 {
		return table[i+1:]
	}
	return table
}

// imageToProperties converts a stream image to row properties, dropping
// the native primary key and unescaping stored field names.
func imageToProperties(image map[string]events.DynamoDBAttributeValue) store.Properties {
	if len(image) == 0 {
		return nil
	}
	props := store.Properties{}
	for name, av := range image {
		if name == "pk" {
			continue
		}
		if v, ok := fromStreamAttr(av); ok {
			props[dynamo.UnescapeFieldName(name)] = v
		}
	}
	return props
}

func fromStreamAttr(av events.DynamoDBAttributeValue) (any, bool) {
	switch av.DataType() {
	case events.DataTypeString:
		return av.String(), true
	case events.DataTypeBoolean:
		return av.Boolean(), true
	case events.DataTypeNumber:
		if n, err := strconv.ParseInt(av.Number(), 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(av.Number(), 64); err == nil {
			return f, true
		}
		return nil, false
	case events.DataTypeList:
		items := av.List()
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item.DataType() != events.DataTypeString {
				return nil, false
			}
			out = append(out, item.String())
		}
		return out, true
	default:
		return nil, false
	}
}
