// Package application holds the use-case services and what they share.
package application

import "time"

// Clock stamps analysis transitions
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC, timestamps are stored in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
