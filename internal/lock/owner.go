package lock

import (
	"fmt"
	"os"

	"github.com/denisbrodbeck/machineid"
)

// appID scopes the hashed machine id so it cannot be correlated across apps
const appID = "testrun"

// Owner identifies the host and process taking a lock, for diagnostics
func Owner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	id, err := machineid.ProtectedID(appID)
	if err != nil || len(id) < 12 {
		return fmt.Sprintf("%s/%d", host, os.Getpid())
	}
	return fmt.Sprintf("%s/%s/%d", host, id[:12], os.Getpid())
}
