package events

import (
	"context"
	"log"
)

// LogSink mirrors all bus traffic into the process log until ctx is done,
// so lifecycle activity is visible even with no API consumer attached.
func LogSink(ctx context.Context, b *Bus) {
	ch, unsub := b.SubscribeAll(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			log.Printf("[EVENTS] %s: %+v", msg.Topic, msg.Payload)
		}
	}
}
