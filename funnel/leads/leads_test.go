package leads

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "leads.json")

	s := NewFileStore(path)
	if ids, err := s.Load(ctx); err != nil || len(ids) != 0 {
		t.Fatalf("missing file = %v, %v", ids, err)
	}
	for _, id := range []int64{30, 10, 30, 20} {
		if err := s.Put(ctx, id); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "[10,20,30]" {
		t.Fatalf("file = %s", data)
	}

	ids, err := NewFileStore(path).Load(ctx)
	if err != nil || !reflect.DeepEqual(ids, []int64{10, 20, 30}) {
		t.Fatalf("reload = %v, %v", ids, err)
	}
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.json")
	if err := os.WriteFile(path, []byte("{oops"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

type failingStore struct{ puts int }

func (f *failingStore) Load(context.Context) ([]int64, error) { return []int64{5}, nil }

func (f *failingStore) Put(context.Context, int64) error {
	f.puts++
	return errors.New("disk full")
}

func TestRegistryMergesExtraAndKeepsMemoryOnFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	r := NewRegistry(store, []int64{99, 5, 0})
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	r.Remember(ctx, 7)
	r.Remember(ctx, 7)
	r.Remember(ctx, 0)

	if got := r.All(); !reflect.DeepEqual(got, []int64{5, 7, 99}) {
		t.Fatalf("all = %v", got)
	}
	if store.puts != 1 {
		t.Fatalf("puts = %d, want 1", store.puts)
	}
}
