// Package realtime fans out "section changed" notifications per username.
//
// Every successful section save publishes an Event on the owner's channel;
// an open profile page holds a Subscription on that channel for as long as
// the viewer is connected. Subscriptions must always be closed, on every exit
// path, or the bus keeps delivering into a channel nobody reads.
package realtime

import (
	"context"
	"time"

	"github.com/refolio/refolio/internal/section"
)

type Event struct {
	Section  section.Name `json:"section"`
	Username string       `json:"username"`
	At       time.Time    `json:"at"`
}

type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, username string) (Subscription, error)
	Close() error
}

// subscriberBuffer bounds how far a slow viewer can fall behind before events
// are dropped for it.
const subscriberBuffer = 16

func channelName(username string) string {
	return "refolio:profile:" + username
}
