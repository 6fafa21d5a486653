// Package instance identifies the running worker replica in logs.
package instance

import "os"

// EnvWorkerID names the variable that overrides the instance identifier.
const EnvWorkerID = "WORKER_ID"

// GetID returns the worker instance identifier or a default value.
func GetID() string {
	if id := os.Getenv(EnvWorkerID); id != "" {
		return id
	}
	return "worker-0"
}
