package store

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func TestMemoryListFIFO(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, v := range []string{"a", "b", "c"} {
		if err := m.RPush(ctx, "q", v); err != nil {
			t.Fatalf("RPush(%q): %v", v, err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := m.LPop(ctx, "q")
		if err != nil {
			t.Fatalf("LPop: %v", err)
		}
		if got != want {
			t.Errorf("LPop = %q, want %q", got, want)
		}
	}

	if _, err := m.LPop(ctx, "q"); !errors.Is(err, ErrNil) {
		t.Errorf("LPop on empty list = %v, want ErrNil", err)
	}
}

func TestMemoryLRemRemovesAllOccurrences(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, v := range []string{"x", "y", "x", "z", "x"} {
		_ = m.RPush(ctx, "q", v)
	}

	n, err := m.LRem(ctx, "q", "x")
	if err != nil {
		t.Fatalf("LRem: %v", err)
	}
	if n != 3 {
		t.Errorf("LRem removed %d, want 3", n)
	}

	n, err = m.LRem(ctx, "q", "x")
	if err != nil {
		t.Fatalf("LRem second call: %v", err)
	}
	if n != 0 {
		t.Errorf("second LRem removed %d, want 0", n)
	}

	// Remaining order preserved.
	for _, want := range []string{"y", "z"} {
		got, err := m.LPop(ctx, "q")
		if err != nil || got != want {
			t.Errorf("LPop = %q, %v, want %q", got, err, want)
		}
	}
}

func TestMemorySetOperations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.SAdd(ctx, "s", "a", "b", "a"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	members, err := m.SMembers(ctx, "s")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	sort.Strings(members)
	if len(members) != 2 || members[0] != "a" || members[1] != "b" {
		t.Errorf("SMembers = %v, want [a b]", members)
	}

	if err := m.SRem(ctx, "s", "a"); err != nil {
		t.Fatalf("SRem: %v", err)
	}
	members, _ = m.SMembers(ctx, "s")
	if len(members) != 1 || members[0] != "b" {
		t.Errorf("after SRem, SMembers = %v, want [b]", members)
	}
}

func TestMemoryHashAndString(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	h, err := m.HGetAll(ctx, "missing")
	if err != nil || len(h) != 0 {
		t.Errorf("HGetAll(missing) = %v, %v, want empty map", h, err)
	}

	if err := m.HSet(ctx, "h", map[string]string{"name": "support"}); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	if err := m.HSet(ctx, "h", map[string]string{"status": "OPEN"}); err != nil {
		t.Fatalf("HSet merge: %v", err)
	}
	h, _ = m.HGetAll(ctx, "h")
	if h["name"] != "support" || h["status"] != "OPEN" {
		t.Errorf("HGetAll = %v", h)
	}

	if _, err := m.Get(ctx, "ptr"); !errors.Is(err, ErrNil) {
		t.Errorf("Get(missing) = %v, want ErrNil", err)
	}
	if err := m.Set(ctx, "ptr", "agent-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := m.Get(ctx, "ptr"); got != "agent-1" {
		t.Errorf("Get = %q, want agent-1", got)
	}
}
