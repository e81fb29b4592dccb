// Package clock registers the current-time tool.
package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/concierge/internal/tools"
)

var schema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"timezone": {"type": "string", "default": "UTC"}
	}
}`)

// Register adds get_current_time. defaultTZ is used when the model passes no
// timezone; an empty string means UTC.
func Register(registry *tools.Registry, defaultTZ string) error {
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}
	return registry.Register("get_current_time",
		"Get the current date and time in the user's timezone.",
		schema,
		func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Timezone string `json:"timezone"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", err
			}
			tzName := args.Timezone
			if tzName == "" {
				tzName = defaultTZ
			}
			loc, err := time.LoadLocation(tzName)
			if err != nil {
				payload, _ := json.Marshal(map[string]string{
					"error": fmt.Sprintf("Unknown timezone: %s", tzName),
				})
				return string(payload), nil
			}

			now := time.Now().In(loc)
			payload, err := json.Marshal(map[string]string{
				"datetime": now.Format(time.RFC3339),
				"date":     now.Format("Monday, January 02, 2006"),
				"time":     now.Format("03:04 PM"),
				"timezone": tzName,
			})
			if err != nil {
				return "", err
			}
			return string(payload), nil
		})
}
