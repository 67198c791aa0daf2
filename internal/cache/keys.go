package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("forecast:job:%s", jobID)
}

// JobRecordKey holds the serialized job row once it is terminal. Terminal
// rows never change, so a hit can be served without touching postgres.
func JobRecordKey(jobID uuid.UUID) string {
	return fmt.Sprintf("forecast:jobrec:%s", jobID)
}

// LatestJobKey maps a user to the ID of their most recently created job.
func LatestJobKey(userID uuid.UUID) string {
	return fmt.Sprintf("forecast:latest:%s", userID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
