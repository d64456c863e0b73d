package complaint_test

import (
	"context"
	"testing"

	"github.com/MrWong99/voxdesk/internal/complaint"
	"github.com/MrWong99/voxdesk/internal/complaint/complainttest"
)

func TestMemStore(t *testing.T) {
	complainttest.Run(t, func(t *testing.T) complaint.Store { return complaint.NewMemStore() })
}

func TestMemStore_ZeroValue(t *testing.T) {
	var s complaint.MemStore
	if err := s.Put(context.Background(), "Ada", "London"); err != nil {
		t.Fatalf("Put on zero value: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
