package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Klingon-tech/klingdrop/internal/explorer"
	"github.com/Klingon-tech/klingdrop/internal/storage"
)

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) BoxByTokenID(_ context.Context, id string) (*explorer.Box, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &explorer.Box{BoxID: "issuance-" + id, Registers: map[string]string{"R4": "0e00"}}, nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}
func (brokenCache) Backend() string { return "broken" }

func testCachedFetcher(t *testing.T, c Cache) {
	t.Helper()
	inner := &countingFetcher{}
	f := &CachedFetcher{Inner: inner, Cache: c, TTL: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		box, err := f.BoxByTokenID(ctx, "tok")
		if err != nil {
			t.Fatalf("BoxByTokenID: %v", err)
		}
		if box.BoxID != "issuance-tok" || box.Registers["R4"] != "0e00" {
			t.Fatalf("box = %+v", box)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestStoreCache(t *testing.T) {
	testCachedFetcher(t, NewStoreCache(storage.NewMemory()))
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("KLINGDROP_TEST_REDIS")
	if url == "" {
		t.Skip("KLINGDROP_TEST_REDIS not set")
	}
	c, err := NewRedis(context.Background(), url, "klingdrop-test:"+t.Name()+":")
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer c.Close()
	testCachedFetcher(t, c)
}

func TestCachedFetcher_ErrorsNotCached(t *testing.T) {
	inner := &countingFetcher{err: explorer.ErrNotFound}
	f := &CachedFetcher{Inner: inner, Cache: NewStoreCache(storage.NewMemory()), TTL: time.Minute}

	for i := 0; i < 2; i++ {
		if _, err := f.BoxByTokenID(context.Background(), "tok"); !errors.Is(err, explorer.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestCachedFetcher_BrokenCacheFallsThrough(t *testing.T) {
	inner := &countingFetcher{}
	f := &CachedFetcher{Inner: inner, Cache: brokenCache{}}
	box, err := f.BoxByTokenID(context.Background(), "tok")
	if err != nil || box == nil {
		t.Fatalf("BoxByTokenID = %v, %v", box, err)
	}
}

func TestCachedFetcher_CorruptEntry(t *testing.T) {
	db := storage.NewMemory()
	db.Put([]byte("box/tok"), []byte("{not json"))
	inner := &countingFetcher{}
	f := &CachedFetcher{Inner: inner, Cache: NewStoreCache(db), TTL: time.Minute}

	if _, err := f.BoxByTokenID(context.Background(), "tok"); err != nil {
		t.Fatalf("BoxByTokenID: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("corrupt entry should refetch, calls = %d", inner.calls)
	}
}
