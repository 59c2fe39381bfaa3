package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func backends(t *testing.T) map[string]KeyValue {
	t.Helper()
	dir := t.TempDir()

	file, err := NewFile(filepath.Join(dir, "files"), nil)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	db, err := NewSQLite(filepath.Join(dir, "kv.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]KeyValue{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": db,
	}
}

func TestBackends(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("Get(missing) = %v, %v", ok, err)
			}

			if err := kv.Put(ctx, "splitPaymentSimulator.state", []byte(`{"v":1}`)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := kv.Put(ctx, "splitPaymentSimulator.state", []byte(`{"v":2}`)); err != nil {
				t.Fatalf("Put overwrite: %v", err)
			}
			got, ok, err := kv.Get(ctx, "splitPaymentSimulator.state")
			if err != nil || !ok {
				t.Fatalf("Get = %v, %v", ok, err)
			}
			if diff := cmp.Diff(`{"v":2}`, string(got)); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}

			if err := kv.Delete(ctx, "splitPaymentSimulator.state"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok, _ := kv.Get(ctx, "splitPaymentSimulator.state"); ok {
				t.Errorf("value still present after Delete")
			}
			if err := kv.Delete(ctx, "never-stored"); err != nil {
				t.Errorf("Delete(missing) = %v", err)
			}
		})
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	value := []byte("abc")
	if err := m.Put(ctx, "k", value); err != nil {
		t.Fatal(err)
	}
	value[0] = 'z'
	got, _, _ := m.Get(ctx, "k")
	got[1] = 'z'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value was mutated: %q", again)
	}
}

func TestFilePutLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Put(context.Background(), "a/b", []byte("x")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one file, got %d", len(entries))
	}
}

func TestFileCanceledContext(t *testing.T) {
	f, err := NewFile(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Put(ctx, "k", []byte("x")); err == nil {
		t.Errorf("expected error on canceled context")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		opts    Options
		wantErr bool
	}{
		{Options{}, false},
		{Options{Backend: "memory"}, false},
		{Options{Backend: "file", Path: filepath.Join(dir, "store")}, false},
		{Options{Backend: "SQLite", Path: filepath.Join(dir, "store.db")}, false},
		{Options{Backend: "redis"}, true},
	}
	for _, tt := range tests {
		kv, err := Open(tt.opts, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("Open(%+v) error = %v, wantErr %v", tt.opts, err, tt.wantErr)
			continue
		}
		if kv != nil {
			kv.Close()
		}
	}
}
