package badgerstore_test

import (
	"context"
	"testing"

	"github.com/MrWong99/voxdesk/internal/complaint"
	"github.com/MrWong99/voxdesk/internal/complaint/badgerstore"
	"github.com/MrWong99/voxdesk/internal/complaint/complainttest"
)

func newInMemory(t *testing.T) complaint.Store {
	t.Helper()
	s, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_InMemory(t *testing.T) {
	complainttest.Run(t, newInMemory)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := badgerstore.Open(badgerstore.Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(ctx, "Ada", "London"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = badgerstore.Open(badgerstore.Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	addr, err := s.Address(ctx, "Ada")
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if addr != "London" {
		t.Errorf("Address = %q, want London", addr)
	}
}

func TestOpen_RequiresDir(t *testing.T) {
	if _, err := badgerstore.Open(badgerstore.Options{}); err == nil {
		t.Fatal("expected error when Dir is empty and InMemory is false")
	}
}

func TestPing_AfterClose(t *testing.T) {
	s, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping after Close should fail")
	}
}
