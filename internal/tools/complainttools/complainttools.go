// Package complainttools binds the complaint book tools to a [complaint.Store].
package complainttools

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxdesk/internal/complaint"
	"github.com/MrWong99/voxdesk/internal/tools"
)

// Instructions is the system prompt of the complaint desk profile.
const Instructions = "You are a Customer Representative named Om, Check for complaints and help store the names and addresses of customers, who want to register a complaint, and help check if a complaint already exists."

// Tools returns check_for_complaint, add_complaint and get_complaint_details
// backed by store.
func Tools(store complaint.Store) []tools.Tool {
	h := handlers{store: store}
	return []tools.Tool{
		{
			Name:        tools.CheckForComplaint,
			Description: "Checks if the name is already stored in the complaint book.",
			Parameters: tools.ObjectSchema(
				tools.Param{Name: "name", Description: "Name of the person to check in the complaint book.", Required: true},
			),
			Handler: h.check,
		},
		{
			Name:        tools.AddComplaint,
			Description: "Store the name and address of a person in the complaint book.",
			Parameters: tools.ObjectSchema(
				tools.Param{Name: "name", Description: "Name of the person whose address is to be stored.", Required: true},
				tools.Param{Name: "address", Description: "City, State, or Country Name to store for the person.", Required: true},
			),
			Handler: h.add,
		},
		{
			Name:        tools.GetComplaintDetails,
			Description: "Gets the address of a person from the complaint book.",
			Parameters: tools.ObjectSchema(
				tools.Param{Name: "name", Description: "Name of the person whose address is to be retrieved.", Required: true},
			),
			Handler: h.details,
		},
	}
}

type handlers struct {
	store complaint.Store
}

func (h handlers) check(ctx context.Context, args tools.Args) (map[string]any, error) {
	exists, err := h.store.Exists(ctx, args.String("name"))
	if err != nil {
		return nil, fmt.Errorf("check complaint: %w", err)
	}
	return map[string]any{"exists": exists}, nil
}

func (h handlers) add(ctx context.Context, args tools.Args) (map[string]any, error) {
	name, address := args.String("name"), args.String("address")
	if err := h.store.Put(ctx, name, address); err != nil {
		return nil, fmt.Errorf("add complaint: %w", err)
	}
	return map[string]any{"response": fmt.Sprintf("Stored the address of %s as %s", name, address)}, nil
}

func (h handlers) details(ctx context.Context, args tools.Args) (map[string]any, error) {
	name := args.String("name")
	address, err := h.store.Address(ctx, name)
	switch {
	case errors.Is(err, complaint.ErrNotFound):
		address = "Address not found for " + name
	case err != nil:
		return nil, fmt.Errorf("get complaint details: %w", err)
	}
	return map[string]any{"name": name, "address": address}, nil
}
