package ringbuf

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestPushEvictsOldest(t *testing.T) {
	buf := New[int](3)
	for i := 1; i <= 5; i++ {
		buf.Push(i)
	}
	if got := buf.Items(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Fatalf("expected [3 4 5], got %v", got)
	}
	if buf.Len() != 3 {
		t.Fatalf("expected len 3, got %d", buf.Len())
	}
}

func TestPushWrapsInPlace(t *testing.T) {
	buf := New[int](3)
	for i := 1; i <= 3; i++ {
		buf.Push(i)
	}
	backing := &buf.items[0]
	for i := 4; i <= 8; i++ {
		buf.Push(i)
		if &buf.items[0] != backing {
			t.Fatalf("push %d reallocated the full buffer", i)
		}
	}
	if got := buf.Items(); !reflect.DeepEqual(got, []int{6, 7, 8}) {
		t.Fatalf("expected [6 7 8], got %v", got)
	}
}

func TestCloneDoesNotShareStorage(t *testing.T) {
	buf := New[int](2)
	buf.Push(1)
	buf.Push(2)
	snapshot := buf.Clone()
	buf.Push(3)
	if got := snapshot.Items(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("clone mutated by later push: %v", got)
	}
	snapshot.Push(4)
	if got := snapshot.Items(); !reflect.DeepEqual(got, []int{2, 4}) {
		t.Fatalf("expected [2 4], got %v", got)
	}
}

func TestZeroValueIsUnbounded(t *testing.T) {
	var buf Buffer[string]
	for i := 0; i < 100; i++ {
		buf.Push("x")
	}
	if buf.Len() != 100 {
		t.Fatalf("expected 100 items, got %d", buf.Len())
	}
	if bounded := buf.WithCapacity(10); bounded.Len() != 10 || bounded.Cap() != 10 {
		t.Fatalf("expected trimmed buffer of 10, got len=%d cap=%d", bounded.Len(), bounded.Cap())
	}
}

func TestJSONRoundTripKeepsCapacity(t *testing.T) {
	buf := New[int](2)
	buf.Push(7)
	buf.Push(8)
	raw, err := json.Marshal(buf)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Buffer[int]
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	decoded.Push(9)
	if got := decoded.Items(); !reflect.DeepEqual(got, []int{8, 9}) {
		t.Fatalf("expected [8 9] after push, got %v", got)
	}
}

func TestWrappedBufferMarshalsOldestFirst(t *testing.T) {
	buf := New[int](3)
	for i := 1; i <= 4; i++ {
		buf.Push(i)
	}
	raw, err := json.Marshal(buf)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"capacity":3,"items":[2,3,4]}` {
		t.Fatalf("unexpected json %s", raw)
	}
}

func TestEmptyBufferMarshalsItemsArray(t *testing.T) {
	raw, err := json.Marshal(New[int](5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"capacity":5,"items":[]}` {
		t.Fatalf("unexpected json %s", raw)
	}
}
