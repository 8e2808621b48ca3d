package server

import (
	"testing"
	"time"

	"github.com/diekev/delsace-sub011/compiler/wire"
)

func TestResultStore_CreateLookupRelease(t *testing.T) {
	store := NewResultStore()
	iface := &wire.Interface{Module: "principal"}

	id := store.Create(iface, "")
	if got, ok := store.Lookup(id); !ok || got != iface {
		t.Fatalf("Lookup(%s) = %v, %v, want the stored interface", id, got, ok)
	}
	if store.Create(iface, "") == id {
		t.Error("Create returned the same id twice")
	}

	store.Release(id)
	if _, ok := store.Lookup(id); ok {
		t.Error("Lookup after Release should fail")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestResultStore_ReleaseSession(t *testing.T) {
	store := NewResultStore()
	a := store.Create(&wire.Interface{}, "a")
	b := store.Create(&wire.Interface{}, "b")
	free := store.Create(&wire.Interface{}, "")

	store.ReleaseSession("a")

	tests := []struct {
		id   string
		want bool
	}{
		{a, false},
		{b, true},
		{free, true},
	}
	for _, tc := range tests {
		if _, ok := store.Lookup(tc.id); ok != tc.want {
			t.Errorf("Lookup(%s) = %v, want %v", tc.id, ok, tc.want)
		}
	}
}

func TestResultStore_Sweep(t *testing.T) {
	store := NewResultStore()
	store.Create(&wire.Interface{}, "")
	store.Create(&wire.Interface{}, "")

	if n := store.Sweep(time.Hour); n != 0 {
		t.Errorf("Sweep(1h) removed %d, want 0", n)
	}
	if n := store.Sweep(-time.Second); n != 2 {
		t.Errorf("Sweep(-1s) removed %d, want 2", n)
	}
	if store.Len() != 0 {
		t.Errorf("Len after sweep = %d, want 0", store.Len())
	}
}
