// internal/domain/notification/message.go
package notification

import "context"

// Message is one rendered digest addressed to a single subscriber.
type Message struct {
	To      string
	Subject string
	HTML    string
	Records int // number of cards in the digest
}

// Gateway delivers digests. A returned error means this recipient was not reached;
// it never affects other recipients.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}
