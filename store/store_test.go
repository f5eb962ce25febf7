package store

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/hazyhaar/ppadmin/dbopen"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)))
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return s
}

func TestRecordRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok := &Upload{DataGroup: "carers", DataType: "weekly", Filename: "w.csv", Format: "csv", Records: 12, Status: "ok", UserID: "u-1"}
	if err := s.Record(ctx, ok); err != nil {
		t.Fatal(err)
	}
	if ok.ID == "" || ok.CreatedAt.IsZero() {
		t.Fatalf("ID/CreatedAt not set: %+v", ok)
	}
	bad := &Upload{DataGroup: "carers", DataType: "monthly", Filename: "m.xlsx", Status: "user_error",
		Problems: []string{"Row 3 has more values than columns"}}
	if err := s.Record(ctx, bad); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != bad.ID || got[1].ID != ok.ID {
		t.Fatalf("order: %+v", got)
	}
	if !slices.Equal(got[0].Problems, bad.Problems) {
		t.Fatalf("problems: %q", got[0].Problems)
	}
	if got[1].Records != 12 || got[1].Format != "csv" || got[1].UserID != "u-1" || got[1].Problems == nil {
		t.Fatalf("row: %+v", got[1])
	}
	if !got[1].CreatedAt.Equal(ok.CreatedAt) {
		t.Fatalf("created_at: %v vs %v", got[1].CreatedAt, ok.CreatedAt)
	}
}

func TestForDataSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, typ := range []string{"weekly", "monthly", "weekly"} {
		if err := s.Record(ctx, &Upload{DataGroup: "carers", DataType: typ, Filename: "f", Status: "ok"}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ForDataSet(ctx, "carers", "weekly", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows", len(got))
	}
	got, err = s.ForDataSet(ctx, "carers", "weekly", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("limit: %d %v", len(got), err)
	}
	got, err = s.ForDataSet(ctx, "other", "weekly", 10)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("empty: %#v %v", got, err)
	}
}

func TestRecord_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := Upload{ID: "upl_fixed", DataGroup: "g", DataType: "t", Filename: "f", Status: "ok"}
	if err := s.Record(ctx, &u); err != nil {
		t.Fatal(err)
	}
	u2 := u
	if err := s.Record(ctx, &u2); err == nil {
		t.Fatal("expected primary key violation")
	}
}

func TestOpen_File(t *testing.T) {
	path := t.TempDir() + "/sub/history.db"
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Record(context.Background(), &Upload{DataGroup: "g", DataType: "t", Filename: "f", Status: "ok"}); err != nil {
		t.Fatal(err)
	}
}
