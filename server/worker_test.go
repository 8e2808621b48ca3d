package server

import (
	"strings"
	"testing"
)

func TestCompileWorker_Do(t *testing.T) {
	ws := &Workspace{Loader: testLibrary}
	w := NewCompileWorker(ws)
	defer w.Stop()

	got, err := w.Do(func(inner *Workspace) interface{} {
		return inner == ws
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if got != true {
		t.Error("Do did not run on the worker's workspace")
	}
}

func TestCompileWorker_RecoversPanic(t *testing.T) {
	w := NewCompileWorker(&Workspace{})
	defer w.Stop()

	_, err := w.Do(func(*Workspace) interface{} {
		panic("boum")
	})
	if err == nil || !strings.Contains(err.Error(), "boum") {
		t.Errorf("Do error = %v, want the panic value", err)
	}

	if _, err := w.Do(func(*Workspace) interface{} { return nil }); err != nil {
		t.Errorf("worker unusable after panic: %v", err)
	}
}

func TestCompileWorker_Stopped(t *testing.T) {
	w := NewCompileWorker(&Workspace{})
	w.Stop()

	if _, err := w.Do(func(*Workspace) interface{} { return nil }); err == nil {
		t.Error("Do on a stopped worker should fail")
	}
}
