// Package complainttest holds the conformance tests shared by every
// complaint.Store implementation.
package complainttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/voxdesk/internal/complaint"
)

// Run exercises the behaviour every [complaint.Store] implementation must
// share. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) complaint.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing name", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.Exists(ctx, "Ada")
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if ok {
			t.Error("Exists on empty store = true")
		}
		if _, err := s.Address(ctx, "Ada"); !errors.Is(err, complaint.ErrNotFound) {
			t.Errorf("Address on empty store = %v, want complaint.ErrNotFound", err)
		}
	})

	t.Run("put then read", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "Ada", "London"); err != nil {
			t.Fatalf("Put: %v", err)
		}
		ok, err := s.Exists(ctx, "Ada")
		if err != nil || !ok {
			t.Fatalf("Exists = %v, %v; want true", ok, err)
		}
		addr, err := s.Address(ctx, "Ada")
		if err != nil {
			t.Fatalf("Address: %v", err)
		}
		if addr != "London" {
			t.Errorf("Address = %q, want London", addr)
		}
	})

	t.Run("last write wins", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "Ada", "London")
		if err := s.Put(ctx, "Ada", "Paris"); err != nil {
			t.Fatalf("Put: %v", err)
		}
		addr, _ := s.Address(ctx, "Ada")
		if addr != "Paris" {
			t.Errorf("Address = %q, want Paris", addr)
		}
	})

	t.Run("names are case sensitive", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "Ada", "London")
		ok, err := s.Exists(ctx, "ada")
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if ok {
			t.Error("Exists(ada) = true after Put(Ada)")
		}
	})

	t.Run("empty values", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "", ""); err != nil {
			t.Fatalf("Put: %v", err)
		}
		addr, err := s.Address(ctx, "")
		if err != nil || addr != "" {
			t.Errorf("Address(\"\") = %q, %v", addr, err)
		}
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				name := fmt.Sprintf("user-%d", i)
				if err := s.Put(ctx, name, "addr"); err != nil {
					t.Errorf("Put(%s): %v", name, err)
				}
			}()
		}
		wg.Wait()
		for i := range 20 {
			ok, err := s.Exists(ctx, fmt.Sprintf("user-%d", i))
			if err != nil || !ok {
				t.Errorf("user-%d missing: %v", i, err)
			}
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
