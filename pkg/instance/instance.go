package instance

import "github.com/angelmondragon/bazaar-backend/pkg/env"

// GetID returns the process identifier used in logs. BAZAAR_INSTANCE_ID wins
// over the platform-provided DYNO name.
func GetID() string {
	return env.First("local", "BAZAAR_INSTANCE_ID", "DYNO")
}
