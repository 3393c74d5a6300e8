package storage

import (
	"errors"
	"testing"
	"time"
)

func TestPrefixDB_SharedBackend(t *testing.T) {
	inner := NewMemory()
	history := NewPrefixDB(inner, []byte("h/"))
	cache := NewPrefixDB(inner, []byte("c/"))
	testDB(t, history)

	if err := cache.Put([]byte("h/a"), []byte("cached")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := history.Get([]byte("h/a"))
	if err != nil || string(got) != "1" {
		t.Errorf("history h/a = %q, %v; cache write leaked into history", got, err)
	}
	if ok, _ := inner.Has([]byte("c/h/a")); !ok {
		t.Error("inner key should carry the namespace prefix")
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("ns/"))
	db.Put([]byte("k1"), []byte("v"))
	inner.Put([]byte("other/k2"), []byte("v"))

	var keys []string
	db.ForEach(nil, func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if len(keys) != 1 || keys[0] != "k1" {
		t.Errorf("ForEach keys = %v, want [k1]", keys)
	}
}

func TestPrefixDB_PutWithTTL(t *testing.T) {
	inner := NewMemory()
	now := time.Unix(1_700_000_000, 0)
	inner.now = func() time.Time { return now }
	db := NewPrefixDB(inner, []byte("c/"))

	if err := db.PutWithTTL([]byte("tok"), []byte("meta"), time.Second); err != nil {
		t.Fatalf("PutWithTTL: %v", err)
	}
	if _, err := db.Get([]byte("tok")); err != nil {
		t.Fatalf("Get: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := db.Get([]byte("tok")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after ttl = %v, want ErrNotFound", err)
	}
}

func TestPrefixDB_DeleteAll(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("ns/"))
	for _, k := range []string{"a", "b", "c"} {
		db.Put([]byte(k), []byte("v"))
	}
	inner.Put([]byte("keep"), []byte("v"))

	if err := db.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	var count int
	db.ForEach(nil, func(_, _ []byte) error { count++; return nil })
	if count != 0 {
		t.Errorf("%d keys left in namespace", count)
	}
	if ok, _ := inner.Has([]byte("keep")); !ok {
		t.Error("DeleteAll removed a key outside its namespace")
	}
	if err := NewPrefixDB(inner, []byte("empty/")).DeleteAll(); err != nil {
		t.Errorf("DeleteAll on empty namespace: %v", err)
	}
}
