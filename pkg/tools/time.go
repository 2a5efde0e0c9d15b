package tools

import "time"

// timeNowMs returns the current time as Unix milliseconds, matching the
// int64 created_at/updated_at columns throughout the schema.
func timeNowMs() int64 {
	return time.Now().UnixMilli()
}
