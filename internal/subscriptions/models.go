package subscriptions

import "time"

// Subscription represents one (email, topic) registration.
type Subscription struct {
	ID        string
	Email     string
	Topic     string
	IsActive  bool
	CreatedAt time.Time
	LastSent  *time.Time
}
