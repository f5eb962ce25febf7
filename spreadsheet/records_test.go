package spreadsheet

import (
	"errors"
	"iter"
	"testing"
)

func rowsOf(rows ...Row) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func TestToRecords(t *testing.T) {
	recs, err := ToRecords(rowsOf(
		Row{},
		Row{StringValue("name"), IntValue(2024)},
		Row{StringValue("a"), IntValue(1)},
		Row{Null, StringValue("")},
		Row{StringValue("b"), FloatValue(2.5)},
	))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0]["name"] != StringValue("a") || recs[1]["2024"] != FloatValue(2.5) {
		t.Fatalf("records: %v", recs)
	}
	for _, r := range recs {
		if len(r) != 2 {
			t.Fatalf("record has %d keys", len(r))
		}
	}
}

func TestToRecords_Empty(t *testing.T) {
	for name, rows := range map[string]iter.Seq2[Row, error]{
		"no rows":     rowsOf(),
		"header only": rowsOf(Row{StringValue("a")}),
	} {
		recs, err := ToRecords(rows)
		if err != nil || len(recs) != 0 {
			t.Errorf("%s: got %v, %v", name, recs, err)
		}
	}
}

func TestToRecords_SchemaError(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want string
	}{
		{"more", Row{IntValue(1), IntValue(2), IntValue(3)}, "row 3 has more values than columns (3 values, 2 columns)"},
		{"fewer", Row{IntValue(1)}, "row 3 has fewer values than columns (1 values, 2 columns)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := ToRecords(rowsOf(
				Row{StringValue("a"), StringValue("b")},
				Row{IntValue(1), IntValue(2)},
				tt.row,
				Row{IntValue(5), IntValue(6)},
			))
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if recs != nil {
				t.Fatal("partial records returned")
			}
			if err.Error() != tt.want {
				t.Fatalf("got %q, want %q", err, tt.want)
			}
		})
	}
}

func TestToRecords_UpstreamError(t *testing.T) {
	boom := errors.New("boom")
	rows := func(yield func(Row, error) bool) {
		if !yield(Row{StringValue("a")}, nil) {
			return
		}
		yield(nil, boom)
	}
	if _, err := ToRecords(rows); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}
