package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

// GetID returns an identifier for this replica, used in logs and lock
// ownership. BUILDMART_INSTANCE_ID wins over the platform dyno name and the
// hostname.
func GetID() string {
	for _, key := range []string{"BUILDMART_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
