// Package storetest holds the behavior contract every ObjectStore backend
// must satisfy.
package storetest

import (
	"bytes"
	"context"
	"testing"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/store"
	"github.com/betedge/edgelake/pkg/exception"
)

// Run exercises the ObjectStore contract against a fresh backend.
func Run(t *testing.T, s store.ObjectStore) {
	t.Helper()

	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		if _, err := s.Get(ctx, "absent/key"); !errors.Is(err, exception.ErrObjectMissing) {
			t.Fatalf("want ErrObjectMissing, got %v", err)
		}
	})

	t.Run("put get round trip", func(t *testing.T) {
		want := []byte{0xDE, 0xAD, 0x00, 0xBE, 0xEF}
		if err := s.Put(ctx, "a/1/data.bin", want); err != nil {
			t.Fatalf("put: %v", err)
		}

		got, err := s.Get(ctx, "a/1/data.bin")
		if err != nil {
			t.Fatalf("get: %v", err)
		}

		if !bytes.Equal(got, want) {
			t.Fatalf("got %x, want %x", got, want)
		}
	})

	t.Run("put overwrites", func(t *testing.T) {
		if err := s.Put(ctx, "a/1/data.bin", []byte("v2")); err != nil {
			t.Fatalf("put: %v", err)
		}

		got, err := s.Get(ctx, "a/1/data.bin")
		if err != nil {
			t.Fatalf("get: %v", err)
		}

		if string(got) != "v2" {
			t.Fatalf("got %q, want v2", got)
		}
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := s.Exists(ctx, "a/1/data.bin")
		if err != nil || !ok {
			t.Fatalf("exists = %v, %v", ok, err)
		}

		ok, err = s.Exists(ctx, "absent/key")
		if err != nil || ok {
			t.Fatalf("absent exists = %v, %v", ok, err)
		}
	})

	t.Run("list prefix ascending", func(t *testing.T) {
		for _, k := range []string{"p/2024/02/data.bin", "p/2024/01/data.bin", "q/2024/01/data.bin"} {
			if err := s.Put(ctx, k, []byte("x")); err != nil {
				t.Fatalf("put %s: %v", k, err)
			}
		}

		keys, err := s.List(ctx, "p/")
		if err != nil {
			t.Fatalf("list: %v", err)
		}

		want := []string{"p/2024/01/data.bin", "p/2024/02/data.bin"}
		if len(keys) != len(want) {
			t.Fatalf("got %v, want %v", keys, want)
		}

		for i := range want {
			if keys[i] != want[i] {
				t.Fatalf("got %v, want %v", keys, want)
			}
		}
	})

	t.Run("list empty prefix misses nothing", func(t *testing.T) {
		keys, err := s.List(ctx, "nope/")
		if err != nil {
			t.Fatalf("list: %v", err)
		}

		if len(keys) != 0 {
			t.Fatalf("got %v, want none", keys)
		}
	})

	t.Run("remove", func(t *testing.T) {
		if err := s.Remove(ctx, "a/1/data.bin"); err != nil {
			t.Fatalf("remove: %v", err)
		}

		if _, err := s.Get(ctx, "a/1/data.bin"); !errors.Is(err, exception.ErrObjectMissing) {
			t.Fatalf("want ErrObjectMissing after remove, got %v", err)
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		if err := s.Put(ctx, "", []byte("x")); err == nil {
			t.Fatalf("empty key accepted")
		}
	})
}
