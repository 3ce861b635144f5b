package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type testDoc struct {
	ID        string    `json:"id,omitempty"`
	Caption   string    `json:"caption"`
	Owner     string    `json:"owner"`
	Count     int       `json:"count"`
	Tags      []string  `json:"tags"`
	Wave      bool      `json:"wave"`
	CreatedAt time.Time `json:"createdAt"`
}

func openTest(t *testing.T) *SQLite {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen(t *testing.T) {
	st := openTest(t)

	var name string
	err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='documents'").Scan(&name)
	if err != nil {
		t.Fatalf("documents table not created: %v", err)
	}
}

func TestOpen_MemoryStoresAreIsolated(t *testing.T) {
	a := openTest(t)
	b := openTest(t)
	ctx := context.Background()

	if _, err := a.Add(ctx, "pulses", "p1", testDoc{Caption: "a"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := b.Get(ctx, "pulses", "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second store should not see first store's doc, err = %v", err)
	}
}

func TestAddGet(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()

	doc, err := st.Add(ctx, "pulses", "", testDoc{Caption: "hello", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("Add should generate an id")
	}
	if doc.Version != 1 {
		t.Errorf("new doc version = %d, want 1", doc.Version)
	}

	got, err := st.Get(ctx, "pulses", doc.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var body testDoc
	if err := got.Decode(&body); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if body.Caption != "hello" || body.ID != doc.ID {
		t.Errorf("body = %+v", body)
	}

	if _, err := st.Add(ctx, "pulses", doc.ID, testDoc{}); err == nil {
		t.Error("Add with an existing id should fail")
	}
}

func TestGet_NotFound(t *testing.T) {
	st := openTest(t)
	_, err := st.Get(context.Background(), "pulses", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSet_BumpsVersion(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()

	d1, err := st.Set(ctx, "users", "u1", testDoc{Caption: "one"})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	d2, err := st.Set(ctx, "users", "u1", testDoc{Caption: "two"})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if d2.Version <= d1.Version {
		t.Errorf("version did not increase: %d -> %d", d1.Version, d2.Version)
	}
	var body testDoc
	d2.Decode(&body)
	if body.Caption != "two" {
		t.Errorf("caption = %q, want two", body.Caption)
	}
}

func TestMutate(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	st.Add(ctx, "pulses", "p1", testDoc{Count: 1, Tags: []string{"a"}})

	doc, err := st.Mutate(ctx, "pulses", "p1", Patch{
		Increment("count", 2),
		ArrayUnion("tags", "a", "b"),
		SetField("caption", "patched"),
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	var body testDoc
	doc.Decode(&body)
	if body.Count != 3 {
		t.Errorf("count = %d, want 3", body.Count)
	}
	if len(body.Tags) != 2 || body.Tags[0] != "a" || body.Tags[1] != "b" {
		t.Errorf("tags = %v, want [a b]", body.Tags)
	}
	if body.Caption != "patched" {
		t.Errorf("caption = %q", body.Caption)
	}
	if doc.Version != 2 {
		t.Errorf("version = %d, want 2", doc.Version)
	}

	doc, err = st.Mutate(ctx, "pulses", "p1", Patch{ArrayRemove("tags", "a"), Increment("count", -3)})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	body = testDoc{}
	doc.Decode(&body)
	if body.Count != 0 || len(body.Tags) != 1 || body.Tags[0] != "b" {
		t.Errorf("after remove: %+v", body)
	}
}

func TestMutate_IncrementFloor(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	st.Add(ctx, "pulses", "p1", testDoc{Count: 1})

	for i := 0; i < 3; i++ {
		if _, err := st.Mutate(ctx, "pulses", "p1", Patch{IncrementFloor("count", -1, 0)}); err != nil {
			t.Fatalf("Mutate failed: %v", err)
		}
	}
	doc, _ := st.Get(ctx, "pulses", "p1")
	var body testDoc
	doc.Decode(&body)
	if body.Count != 0 {
		t.Errorf("count = %d, want 0", body.Count)
	}
}

func TestMutate_IncrementWhenArrayChanged(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	st.Add(ctx, "pulses", "p1", testDoc{Tags: []string{}})

	like := Patch{ArrayUnion("tags", "viewer"), Increment("count", 1).When("tags")}
	unlike := Patch{ArrayRemove("tags", "viewer"), IncrementFloor("count", -1, 0).When("tags")}
	steps := []struct {
		patch Patch
		count int
		tags  int
	}{
		{like, 1, 1},
		{like, 1, 1}, // already present
		{unlike, 0, 0},
		{unlike, 0, 0}, // already absent
		{like, 1, 1},
	}
	for i, step := range steps {
		doc, err := st.Mutate(ctx, "pulses", "p1", step.patch)
		if err != nil {
			t.Fatalf("step %d: Mutate failed: %v", i, err)
		}
		var body testDoc
		doc.Decode(&body)
		if body.Count != step.count || len(body.Tags) != step.tags {
			t.Errorf("step %d: count=%d tags=%v, want %d and %d tags", i, body.Count, body.Tags, step.count, step.tags)
		}
	}
}

func TestMutate_StructValuesCompareByValue(t *testing.T) {
	type echo struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	st := openTest(t)
	ctx := context.Background()
	st.Add(ctx, "pulses", "p1", map[string]any{"echoes": []any{}})

	e := echo{ID: "e1", Text: "nice"}
	st.Mutate(ctx, "pulses", "p1", Patch{ArrayUnion("echoes", e)})
	doc, err := st.Mutate(ctx, "pulses", "p1", Patch{ArrayUnion("echoes", e)})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	var body struct {
		Echoes []echo `json:"echoes"`
	}
	doc.Decode(&body)
	if len(body.Echoes) != 1 {
		t.Errorf("echoes = %d, want 1 (union is idempotent)", len(body.Echoes))
	}
}

func TestMutate_Errors(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	st.Add(ctx, "pulses", "p1", testDoc{Caption: "x"})

	tests := []struct {
		name  string
		id    string
		patch Patch
		is    error
	}{
		{"missing doc", "nope", Patch{Increment("count", 1)}, ErrNotFound},
		{"bad field", "p1", Patch{SetField("a.b", 1)}, ErrInvalidField},
		{"increment string", "p1", Patch{Increment("caption", 1)}, nil},
		{"union on scalar", "p1", Patch{ArrayUnion("caption", "y")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := st.Mutate(ctx, "pulses", tt.id, tt.patch)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
		})
	}

	// Failed patches leave the document untouched.
	doc, _ := st.Get(ctx, "pulses", "p1")
	if doc.Version != 1 {
		t.Errorf("version = %d after failed mutations, want 1", doc.Version)
	}
}

func TestQueryPage_CreatedAtDescending(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Sub-second offsets exercise ordering that string comparison gets wrong.
	for i := 0; i < 45; i++ {
		created := base.Add(time.Duration(i) * 100 * time.Millisecond)
		if _, err := st.Add(ctx, "pulses", fmt.Sprintf("p%02d", i), testDoc{CreatedAt: created}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	var (
		seen   []string
		cursor string
		pages  int
	)
	for {
		page, err := st.QueryPage(ctx, Query{
			Collection: "pulses",
			OrderBy:    "createdAt",
			Descending: true,
			Cursor:     cursor,
			Limit:      20,
		})
		if err != nil {
			t.Fatalf("QueryPage failed: %v", err)
		}
		pages++
		for _, d := range page.Docs {
			seen = append(seen, d.ID)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
	if len(seen) != 45 {
		t.Fatalf("saw %d docs, want 45", len(seen))
	}
	for i, id := range seen {
		want := fmt.Sprintf("p%02d", 44-i)
		if id != want {
			t.Fatalf("position %d = %s, want %s", i, id, want)
		}
	}
}

func TestQueryPage_EqualKeysBreakTiesByID(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	same := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c", "d"} {
		st.Add(ctx, "pulses", id, testDoc{CreatedAt: same})
	}

	page1, err := st.QueryPage(ctx, Query{Collection: "pulses", OrderBy: "createdAt", Descending: true, Limit: 2})
	if err != nil {
		t.Fatalf("QueryPage failed: %v", err)
	}
	page2, err := st.QueryPage(ctx, Query{Collection: "pulses", OrderBy: "createdAt", Descending: true, Limit: 2, Cursor: page1.Cursor})
	if err != nil {
		t.Fatalf("QueryPage failed: %v", err)
	}
	got := []string{page1.Docs[0].ID, page1.Docs[1].ID, page2.Docs[0].ID, page2.Docs[1].ID}
	want := []string{"d", "c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order = %v, want %v", got, want)
			break
		}
	}
}

func TestQueryPage_FilterAndErrors(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	st.Add(ctx, "notifications", "n1", testDoc{Owner: "alice", Wave: true})
	st.Add(ctx, "notifications", "n2", testDoc{Owner: "bob"})
	st.Add(ctx, "notifications", "n3", testDoc{Owner: "alice"})

	page, err := st.QueryPage(ctx, Query{Collection: "notifications", Filter: Filter{"owner": "alice"}, Limit: 10})
	if err != nil {
		t.Fatalf("QueryPage failed: %v", err)
	}
	if len(page.Docs) != 2 {
		t.Errorf("alice docs = %d, want 2", len(page.Docs))
	}
	if page.Cursor != "" {
		t.Error("short page should have no cursor")
	}

	docs, err := st.Scan(ctx, "notifications", Filter{"wave": true})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "n1" {
		t.Errorf("wave docs = %v", docs)
	}

	if _, err := st.QueryPage(ctx, Query{Collection: "notifications", Limit: 0}); err == nil {
		t.Error("zero limit should fail")
	}
	if _, err := st.QueryPage(ctx, Query{Collection: "notifications", Limit: 1, Cursor: "!!"}); !errors.Is(err, ErrBadCursor) {
		t.Errorf("bad cursor err = %v", err)
	}
	if _, err := st.Scan(ctx, "notifications", Filter{"x') OR 1=1 --": 1}); !errors.Is(err, ErrInvalidField) {
		t.Errorf("injected field err = %v", err)
	}
}

func TestDelete(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	st.Add(ctx, "pulses", "p1", testDoc{})

	if err := st.Delete(ctx, "pulses", "p1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := st.Delete(ctx, "pulses", "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestConcurrentMutate(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	st.Add(ctx, "pulses", "p1", testDoc{})

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.Mutate(ctx, "pulses", "p1", Patch{Increment("count", 1)}); err != nil {
				t.Errorf("Mutate failed: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, _ := st.Get(ctx, "pulses", "p1")
	var body testDoc
	doc.Decode(&body)
	if body.Count != 25 {
		t.Errorf("count = %d, want 25", body.Count)
	}
	if doc.Version != 26 {
		t.Errorf("version = %d, want 26", doc.Version)
	}
}

func TestOnCommit(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()

	var got []string
	st.OnCommit(func(d Document) { got = append(got, fmt.Sprintf("%s:%v", d.ID, d.Deleted)) })

	st.Add(ctx, "pulses", "p1", testDoc{})
	st.Mutate(ctx, "pulses", "p1", Patch{Increment("count", 1)})
	st.Delete(ctx, "pulses", "p1")

	want := []string{"p1:false", "p1:false", "p1:true"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("commits = %v, want %v", got, want)
	}
}
