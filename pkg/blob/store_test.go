package blob

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/odvcencio/graphstate/pkg/object"
)

func TestStorePutGet(t *testing.T) {
	s := NewStore(nil)
	data := []byte("hello world")
	h := s.Put(data)
	if h != object.HashBytes(data) {
		t.Errorf("Put hash = %s, want %s", h, object.HashBytes(data))
	}
	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestStoreDedup(t *testing.T) {
	s := NewStore(nil)
	h1, added1 := s.Add([]byte("same"))
	h2, added2 := s.Add([]byte("same"))
	if h1 != h2 {
		t.Fatalf("identical payloads hashed differently: %s vs %s", h1, h2)
	}
	if !added1 || added2 {
		t.Errorf("added = %v, %v; want true, false", added1, added2)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if s.Size() != 4 {
		t.Errorf("Size = %d, want 4", s.Size())
	}
}

func TestStoreImmutableAfterPut(t *testing.T) {
	s := NewStore(nil)
	data := []byte("mutable")
	h := s.Put(data)
	data[0] = 'M'

	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "mutable" {
		t.Errorf("stored blob changed through caller slice: %q", got)
	}
	got[0] = 'X'
	again, _ := s.Get(h)
	if string(again) != "mutable" {
		t.Errorf("stored blob changed through returned slice: %q", again)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Get(object.HashBytes([]byte("absent")))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}
}

func TestStoreRegisterVerifiesHash(t *testing.T) {
	s := NewStore(nil)
	data := []byte("payload")
	if err := s.Register(object.HashBytes(data), data); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wrong := object.HashBytes([]byte("other"))
	err := s.Register(wrong, data)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("Register mismatch: err = %v, want ErrIntegrity", err)
	}
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *IntegrityError, got %T", err)
	}
	if ie.Hash != wrong || ie.Actual != object.HashBytes(data) {
		t.Errorf("IntegrityError = %+v", ie)
	}
	if s.Has(wrong) {
		t.Error("mismatched blob was stored")
	}
}

func TestStoreBlake2b(t *testing.T) {
	h, err := object.NewHasher(object.BLAKE2b)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	s := NewStore(h)
	data := []byte("payload")
	got := s.Put(data)
	if got == object.HashBytes(data) {
		t.Error("blake2b store produced a sha256 hash")
	}
	if err := s.Register(object.HashBytes(data), data); !errors.Is(err, ErrIntegrity) {
		t.Errorf("sha256 hash accepted by blake2b store: %v", err)
	}
}

func TestStoreRetainAndDelete(t *testing.T) {
	s := NewStore(nil)
	a := s.Put([]byte("a"))
	b := s.Put([]byte("bb"))
	c := s.Put([]byte("ccc"))

	if !s.Delete(c) || s.Delete(c) {
		t.Error("Delete should report existence once")
	}
	dropped := s.Retain(map[object.Hash]struct{}{a: {}})
	if dropped != 1 {
		t.Errorf("Retain dropped %d, want 1", dropped)
	}
	if s.Has(b) || !s.Has(a) {
		t.Error("Retain kept the wrong blobs")
	}
	if s.Size() != 1 {
		t.Errorf("Size = %d, want 1", s.Size())
	}
	hashes := s.Hashes()
	if len(hashes) != 1 || hashes[0] != a {
		t.Errorf("Hashes = %v", hashes)
	}
	s.Reset()
	if s.Len() != 0 || s.Size() != 0 {
		t.Error("Reset left data behind")
	}
}

func TestStoreConcurrentPut(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Put([]byte("shared"))
				s.Put([]byte(fmt.Sprintf("distinct-%d-%d", i, j)))
			}
		}(i)
	}
	wg.Wait()
	if want := 1 + 16*50; s.Len() != want {
		t.Errorf("Len = %d, want %d", s.Len(), want)
	}
}
