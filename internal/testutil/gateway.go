package testutil

import (
	"context"
	"sort"
	"sync"

	"medirate_alerts/internal/domain/notification"
)

// Gateway records every message it is asked to send. Recipients listed in Fail are
// rejected with the mapped error.
type Gateway struct {
	mu   sync.Mutex
	sent []notification.Message

	Fail map[string]error
}

var _ notification.Gateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{Fail: make(map[string]error)}
}

func (g *Gateway) Send(ctx context.Context, msg notification.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.Fail[msg.To]; err != nil {
		return err
	}
	g.sent = append(g.sent, msg)
	return nil
}

// Sent returns the delivered messages ordered by recipient.
func (g *Gateway) Sent() []notification.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]notification.Message(nil), g.sent...)
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out
}

// Recipients returns the sorted addresses that received a message.
func (g *Gateway) Recipients() []string {
	var out []string
	for _, m := range g.Sent() {
		out = append(out, m.To)
	}
	return out
}
