package complainttools_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/voxdesk/internal/complaint"
	"github.com/MrWong99/voxdesk/internal/tools"
	"github.com/MrWong99/voxdesk/internal/tools/complainttools"
)

func newRegistry(t *testing.T, store complaint.Store) *tools.Registry {
	t.Helper()
	r, err := tools.NewRegistry(complainttools.Tools(store)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestTools_Declarations(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, complaint.NewMemStore())

	want := []tools.Name{tools.CheckForComplaint, tools.AddComplaint, tools.GetComplaintDetails}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	add, _ := r.Lookup("add_complaint")
	if len(add.Parameters.Required) != 2 {
		t.Errorf("add_complaint required = %v, want [name address]", add.Parameters.Required)
	}
}

func TestTools_AddThenCheckThenDetails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t, complaint.NewMemStore())

	got, err := r.Call(ctx, "check_for_complaint", map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got["exists"] != false {
		t.Errorf("exists before add = %v, want false", got["exists"])
	}

	got, err = r.Call(ctx, "add_complaint", map[string]any{"name": "Alice", "address": "Berlin"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got["response"] != "Stored the address of Alice as Berlin" {
		t.Errorf("add response = %v", got["response"])
	}

	got, _ = r.Call(ctx, "check_for_complaint", map[string]any{"name": "Alice"})
	if got["exists"] != true {
		t.Errorf("exists after add = %v, want true", got["exists"])
	}

	got, err = r.Call(ctx, "get_complaint_details", map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if got["name"] != "Alice" || got["address"] != "Berlin" {
		t.Errorf("details = %v", got)
	}
}

func TestTools_DetailsNotFound(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, complaint.NewMemStore())

	got, err := r.Call(context.Background(), "get_complaint_details", map[string]any{"name": "Bob"})
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if got["address"] != "Address not found for Bob" {
		t.Errorf("address = %v", got["address"])
	}
}

func TestTools_MissingAddressRejected(t *testing.T) {
	t.Parallel()
	store := complaint.NewMemStore()
	r := newRegistry(t, store)

	_, err := r.Call(context.Background(), "add_complaint", map[string]any{"name": "Alice"})
	if !errors.Is(err, tools.ErrInvalidArgs) {
		t.Fatalf("err = %v, want ErrInvalidArgs", err)
	}
	if store.Len() != 0 {
		t.Error("store must not be written on invalid args")
	}
}

type failingStore struct{}

var errBackend = errors.New("backend down")

func (failingStore) Exists(context.Context, string) (bool, error)    { return false, errBackend }
func (failingStore) Put(context.Context, string, string) error       { return errBackend }
func (failingStore) Address(context.Context, string) (string, error) { return "", errBackend }
func (failingStore) Ping(context.Context) error                      { return errBackend }
func (failingStore) Close() error                                    { return nil }

func TestTools_StoreErrorsPropagate(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, failingStore{})

	calls := []struct {
		name string
		args map[string]any
	}{
		{"check_for_complaint", map[string]any{"name": "A"}},
		{"add_complaint", map[string]any{"name": "A", "address": "B"}},
		{"get_complaint_details", map[string]any{"name": "A"}},
	}
	for _, c := range calls {
		_, err := r.Call(context.Background(), c.name, c.args)
		if !errors.Is(err, errBackend) {
			t.Errorf("%s: err = %v, want errBackend", c.name, err)
		}
		if err != nil && !strings.Contains(err.Error(), "complaint") {
			t.Errorf("%s: err %q should name the operation", c.name, err)
		}
	}
}
