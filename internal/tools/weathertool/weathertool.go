// Package weathertool exposes the get_weather tool.
package weathertool

import (
	"context"

	"github.com/MrWong99/voxdesk/internal/tools"
)

// Instructions is the system prompt of the weather assistant profile.
const Instructions = "You are a helpful assistant named Doug, introduce yourself and help find weather information for the user"

// Lookup returns the current temperature at a location in whole degrees
// Celsius, or -1 when it cannot be determined. [*weather.Client] satisfies it.
type Lookup interface {
	Temperature(ctx context.Context, location string) int
}

// Tools returns the get_weather tool backed by l.
func Tools(l Lookup) []tools.Tool {
	return []tools.Tool{{
		Name:        tools.GetWeather,
		Description: "Returns the current weather in the given location in Celsius, returns -1 if an error occurs.",
		Parameters: tools.ObjectSchema(
			tools.Param{Name: "location", Description: "City or State or Country Name.", Required: true},
		),
		Handler: func(ctx context.Context, args tools.Args) (map[string]any, error) {
			return map[string]any{"temperature": l.Temperature(ctx, args.String("location"))}, nil
		},
	}}
}
