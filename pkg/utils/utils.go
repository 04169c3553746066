package utils

import "time"

// TimeNowUTC returns the current time in UTC.
func TimeNowUTC() time.Time {
	return time.Now().UTC()
}

// ToPointer returns a pointer to the given value.
func ToPointer[T any](value T) *T {
	return &value
}
