package relay

import (
	"context"
	"encoding/json"

	"github.com/burntcarrot/docsync/commons"
	"github.com/sirupsen/logrus"
)

type submission struct {
	client *Client
	op     commons.Operation
}

// Hub serializes every document change and fans accepted operations out to
// the clients of the document, the submitting client included.
type Hub struct {
	store        *Store
	announceOnly bool
	log          logrus.FieldLogger

	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	submit     chan submission
	stopped    chan struct{}
}

func newHub(store *Store, announceOnly bool, log logrus.FieldLogger) *Hub {
	return &Hub{
		store:        store,
		announceOnly: announceOnly,
		log:          log,
		clients:      make(map[string]map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		submit:       make(chan submission),
		stopped:      make(chan struct{}),
	}
}

// Run processes registrations and operations until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.clients {
				for c := range clients {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			return

		case c := <-h.register:
			h.join(c)

		case c := <-h.unregister:
			h.leave(c)

		case s := <-h.submit:
			h.handleSubmit(s)
		}
	}
}

func (h *Hub) join(c *Client) {
	snap, ok := h.store.snapshot(c.docID)
	if !ok {
		close(c.send)
		return
	}

	if h.clients[c.docID] == nil {
		h.clients[c.docID] = make(map[*Client]bool)
	}
	h.clients[c.docID][c] = true

	var content *string
	if !h.announceOnly {
		content = &snap.Content
	}
	h.deliver(c, commons.NewInitialState(content, snap.Version))

	h.log.WithFields(logrus.Fields{
		"doc":     c.docID,
		"client":  c.id.String(),
		"version": snap.Version,
	}).Infof("client joined, %d connected", len(h.clients[c.docID]))
}

func (h *Hub) leave(c *Client) {
	clients := h.clients[c.docID]
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, c.docID)
	}

	h.log.WithFields(logrus.Fields{
		"doc":    c.docID,
		"client": c.id.String(),
	}).Infof("client left, %d connected", len(clients))
}

func (h *Hub) handleSubmit(s submission) {
	if !h.clients[s.client.docID][s.client] {
		return
	}

	res := h.store.submit(s.client.docID, s.client.id, s.op)

	if res.reject != nil {
		h.log.WithField("client", s.client.id.String()).Warnf("rejected %v: %s", s.op, res.reject.Type)
		h.deliver(s.client, *res.reject)
	}

	if res.accepted != nil {
		h.log.WithField("doc", s.client.docID).Debugf("accepted %v", *res.accepted)
		msg := commons.NewOperationMessage(*res.accepted)
		for c := range h.clients[s.client.docID] {
			h.deliver(c, msg)
		}
	}
}

// deliver queues msg for c. A client that cannot keep up is dropped.
func (h *Hub) deliver(c *Client, msg commons.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorf("failed to encode %s message: %v", msg.Type, err)
		return
	}

	select {
	case c.send <- data:
	default:
		h.log.WithField("client", c.id.String()).Warnf("send buffer full, dropping client")
		h.leave(c)
	}
}
