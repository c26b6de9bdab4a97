package memory_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/efroese/sparsemapcontent/memory"
	"github.com/efroese/sparsemapcontent/store"
)

func newClient(t *testing.T) store.Client {
	t.Helper()
	client, err := memory.New().GetClient(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestGetAbsentReturnsEmptyMap(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	props, err := client.Get(ctx, "n", "cn", "/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if props == nil {
		t.Fatal("expected an empty map, got nil")
	}
	if len(props) != 0 {
		t.Errorf("expected no properties, got %v", props)
	}
}

func TestInsertIsPartialUpdate(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	if err := client.Insert(ctx, "n", "cn", "k", store.Properties{"a": "1", "b": "2"}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Insert(ctx, "n", "cn", "k", store.Properties{"b": "updated"}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	props, err := client.Get(ctx, "n", "cn", "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if props["a"] != "1" {
		t.Errorf("expected untouched property a=1, got %v", props["a"])
	}
	if props["b"] != "updated" {
		t.Errorf("expected b=updated, got %v", props["b"])
	}
}

func TestRemoveSentinelUnsetsProperty(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	if err := client.Insert(ctx, "n", "cn", "k", store.Properties{"a": "1", "b": "2"}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := client.Insert(ctx, "n", "cn", "k", store.Properties{"a": store.RemoveProperty}, false); err != nil {
			t.Fatalf("unexpected error on pass %d: %v", i, err)
		}
	}

	props, err := client.Get(ctx, "n", "cn", "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := props["a"]; ok {
		t.Errorf("expected property a removed, got %v", props["a"])
	}
	if props["b"] != "2" {
		t.Errorf("expected property b untouched, got %v", props["b"])
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	if err := client.Remove(ctx, "n", "cn", "/never-existed"); err != nil {
		t.Errorf("expected removing an absent row to succeed, got %v", err)
	}
}

func TestInsertRejectsInvalidValue(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	err := client.Insert(ctx, "n", "cn", "k", store.Properties{"bad": map[string]any{}}, true)
	if err == nil {
		t.Fatal("expected an error for an invalid value")
	}
}

func TestHierarchyScenario(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	rows := []struct {
		path string
		prop string
	}{
		{path: "/", prop: "value1"},
		{path: "/test", prop: "value2"},
		{path: "/test/ing", prop: "value3"},
	}
	for _, r := range rows {
		err := client.Insert(ctx, "n", "cn", r.path, store.Properties{
			"prop1":         r.prop,
			store.PathField: r.path,
		}, true)
		if err != nil {
			t.Fatalf("insert %s: %v", r.path, err)
		}
	}

	root, err := client.Get(ctx, "n", "cn", "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root["prop1"] != "value1" {
		t.Errorf("expected value1 at /, got %v", root["prop1"])
	}

	children := drain(t, func() (store.Rows, error) {
		return client.ListChildren(ctx, "n", "cn", "/")
	})
	if len(children) != 1 || children[0].Key != "/test" {
		t.Fatalf("expected exactly /test under /, got %v", keysOf(children))
	}
	if children[0].Properties["prop1"] != "value2" {
		t.Errorf("expected value2 at /test, got %v", children[0].Properties["prop1"])
	}

	grandchildren := drain(t, func() (store.Rows, error) {
		return client.ListChildren(ctx, "n", "cn", "/test")
	})
	if len(grandchildren) != 1 || grandchildren[0].Key != "/test/ing" {
		t.Fatalf("expected exactly /test/ing under /test, got %v", keysOf(grandchildren))
	}
	if grandchildren[0].Properties["prop1"] != "value3" {
		t.Errorf("expected value3 at /test/ing, got %v", grandchildren[0].Properties["prop1"])
	}
}

func TestFindScalarAndOrSet(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	seed := map[string]store.Properties{
		"u1": {"type": "u", "dept": "eng"},
		"u2": {"type": "u", "dept": "ops"},
		"g1": {"type": "g", "dept": "eng"},
	}
	for k, props := range seed {
		if err := client.Insert(ctx, "n", "au", k, props, true); err != nil {
			t.Fatalf("insert %s: %v", k, err)
		}
	}

	matched := drain(t, func() (store.Rows, error) {
		return client.Find(ctx, "n", "au", store.Query{"type": "u"})
	})
	if len(matched) != 2 {
		t.Errorf("expected 2 users, got %v", keysOf(matched))
	}

	matched = drain(t, func() (store.Rows, error) {
		return client.Find(ctx, "n", "au", store.Query{
			"orset0": store.OrSet("dept", "eng", "ops"),
			"type":   "u",
		})
	})
	if len(matched) != 2 {
		t.Errorf("expected 2 rows from the disjunction, got %v", keysOf(matched))
	}
}

func TestFindArrayContainsAll(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	if err := client.Insert(ctx, "n", "au", "g1", store.Properties{"members": []string{"a", "b"}}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Insert(ctx, "n", "au", "g2", store.Properties{"members": []string{"a"}}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matched := drain(t, func() (store.Rows, error) {
		return client.Find(ctx, "n", "au", store.Query{"members": []string{"a", "b"}})
	})
	if len(matched) != 1 || matched[0].Key != "g1" {
		t.Errorf("expected only g1, got %v", keysOf(matched))
	}
}

func TestCountFastPath(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	for _, k := range []string{"a", "b", "c"} {
		if err := client.Insert(ctx, "n", "au", k, store.Properties{"type": "u"}, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	rows, err := client.Find(ctx, "n", "au", store.Query{
		"type":                  "u",
		store.QueryStatementSet: store.StatementCountEstimate,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("expected the synthetic count row")
	}
	if count := rows.Row().Properties[store.CountField]; count != int64(3) {
		t.Errorf("expected count 3, got %v", count)
	}
	if rows.Next() {
		t.Error("expected exactly one row")
	}
}

func TestAllCount(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	for _, k := range []string{"a", "b"} {
		if err := client.Insert(ctx, "n", "au", k, store.Properties{"x": "1"}, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	count, err := client.AllCount(ctx, "n", "au")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
}

func TestClosedClientFails(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Get(ctx, "n", "cn", "k"); err == nil {
		t.Error("expected an error from a closed client")
	}
}

func TestStreamBodyRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	body := []byte("streamed body bytes")
	meta, err := client.StreamBodyIn(ctx, "n", "cn", "/f", "/f", "", store.Properties{}, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !client.HasBody(meta, "") {
		t.Error("expected HasBody to report the stored stream")
	}

	out, err := client.StreamBodyOut(ctx, "n", "cn", "/f", "/f", "", meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer out.Close()
	got, err := io.ReadAll(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("expected %q, got %q", body, got)
	}
}

func drain(t *testing.T, open func() (store.Rows, error)) []store.Row {
	t.Helper()
	rows, err := open()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rows.Close()
	var out []store.Row
	for rows.Next() {
		out = append(out, rows.Row())
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out
}

func keysOf(rows []store.Row) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return keys
}
