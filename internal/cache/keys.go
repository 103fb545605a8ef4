package cache

import "fmt"

func RecordingStatusKey(recordingID string) string {
	return fmt.Sprintf("recording:status:%s", recordingID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
