package stream_test

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/efroese/sparsemapcontent/authorizable"
	"github.com/efroese/sparsemapcontent/store"
	"github.com/efroese/sparsemapcontent/stream"
)

type event struct {
	zone  string
	id    string
	actor string
	isNew bool
}

type recordingListener struct {
	updates []event
	deletes []event
}

func (l *recordingListener) OnUpdate(zone, id, actorID string, isNew bool, before store.Properties, attributes ...string) {
	l.updates = append(l.updates, event{zone: zone, id: id, actor: actorID, isNew: isNew})
}

func (l *recordingListener) OnDelete(zone, id, actorID string, before store.Properties) {
	l.deletes = append(l.deletes, event{zone: zone, id: id, actor: actorID})
}

const sourceArn = "arn:aws:dynamodb:us-east-1:123456789012:table/sparse_au/stream/2026-01-01T00:00:00.000"

func image(key, actor string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"pk":                             events.NewStringAttribute("deadbeef"),
		store.KeyField:                   events.NewStringAttribute(key),
		authorizable.LastModifiedByField: events.NewStringAttribute(actor),
	}
}

func TestRelayFallsBackToCreator(t *testing.T) {
	listener := &recordingListener{}
	relay := stream.NewRelay(listener, map[string]string{"au": "AU"}, nil)

	err := relay.HandleChange(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{{
			EventID:        "5",
			EventName:      "INSERT",
			EventSourceArn: sourceArn,
			Change: events.DynamoDBStreamRecord{
				NewImage: map[string]events.DynamoDBAttributeValue{
					store.KeyField:              events.NewStringAttribute("bob"),
					authorizable.CreatedByField: events.NewStringAttribute("admin"),
				},
			},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listener.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(listener.updates))
	}
	if listener.updates[0].actor != "admin" {
		t.Errorf("expected the creator as actor, got %q", listener.updates[0].actor)
	}
}

func TestRelayInsert(t *testing.T) {
	listener := &recordingListener{}
	relay := stream.NewRelay(listener, map[string]string{"au": "AU"}, nil)

	err := relay.HandleChange(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{{
			EventID:        "1",
			EventName:      "INSERT",
			EventSourceArn: sourceArn,
			Change: events.DynamoDBStreamRecord{
				NewImage: image("bob", "admin"),
			},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(listener.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(listener.updates))
	}
	got := listener.updates[0]
	if got.zone != "AU" || got.id != "bob" || got.actor != "admin" || !got.isNew {
		t.Errorf("expected AU/bob/admin/new, got %+v", got)
	}
}

func TestRelayModify(t *testing.T) {
	listener := &recordingListener{}
	relay := stream.NewRelay(listener, map[string]string{"au": "AU"}, nil)

	err := relay.HandleChange(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{{
			EventID:        "2",
			EventName:      "MODIFY",
			EventSourceArn: sourceArn,
			Change: events.DynamoDBStreamRecord{
				OldImage: image("bob", "admin"),
				NewImage: image("bob", "bob"),
			},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(listener.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(listener.updates))
	}
	got := listener.updates[0]
	if got.isNew {
		t.Error("expected a modify not to be flagged new")
	}
	if got.actor != "bob" {
		t.Errorf("expected actor from the new image, got %q", got.actor)
	}
}

func TestRelayRemove(t *testing.T) {
	listener := &recordingListener{}
	relay := stream.NewRelay(listener, map[string]string{"au": "AU"}, nil)

	err := relay.HandleChange(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{{
			EventID:        "3",
			EventName:      "REMOVE",
			EventSourceArn: sourceArn,
			Change: events.DynamoDBStreamRecord{
				OldImage: image("bob", "admin"),
			},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(listener.deletes) != 1 {
		t.Fatalf("expected 1 delete, got %d", len(listener.deletes))
	}
	if listener.deletes[0].id != "bob" {
		t.Errorf("expected id bob, got %q", listener.deletes[0].id)
	}
}

func TestRelaySkipsUnmappedTables(t *testing.T) {
	listener := &recordingListener{}
	relay := stream.NewRelay(listener, map[string]string{"cn": "CO"}, nil)

	err := relay.HandleChange(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{{
			EventID:        "4",
			EventName:      "INSERT",
			EventSourceArn: sourceArn,
			Change: events.DynamoDBStreamRecord{
				NewImage: image("bob", "admin"),
			},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listener.updates) != 0 {
		t.Errorf("expected no updates for an unmapped table, got %d", len(listener.updates))
	}
}
