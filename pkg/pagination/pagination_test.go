package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2024, 3, 4, 12, 0, 0, 123456789, time.FixedZone("IST", 19800)), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("ParseCursor: %v", err)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
	if out.CreatedAt.Location() != time.UTC {
		t.Fatalf("cursor time should be UTC")
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"%%%", "bm9waXBl", EncodeCursor(Cursor{})[:4]} {
		if _, err := ParseCursor(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("blank cursor should be nil, got %v %v", c, err)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestBuildUsesLastKeptRow(t *testing.T) {
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	type row struct {
		at time.Time
		id uuid.UUID
	}
	rows := []row{{base.Add(3 * time.Minute), uuid.New()}, {base.Add(2 * time.Minute), uuid.New()}, {base.Add(time.Minute), uuid.New()}}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page := Build(rows, 2, key)
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	next, err := ParseCursor(page.NextCursor)
	if err != nil || next == nil {
		t.Fatalf("next cursor: %v", err)
	}
	if next.ID != rows[1].id {
		t.Fatalf("cursor should point at the last returned row")
	}

	last := Build(rows[:1], 2, key)
	if last.NextCursor != "" {
		t.Fatalf("short page must not carry a cursor")
	}
	if empty := Build[row](nil, 2, key); empty.Items == nil {
		t.Fatalf("empty page should encode as []")
	}
}
