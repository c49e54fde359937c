package messaging

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation is a thread with a single peer.
type Conversation struct {
	PeerAddress string    `json:"peerAddress"`
	CreatedAt   time.Time `json:"createdAt"`
	Warning     string    `json:"warning,omitempty"`
}

// Message is a single delivered message within a conversation.
type Message struct {
	ID            string    `json:"id"`
	SenderAddress string    `json:"senderAddress"`
	Sent          time.Time `json:"sent"`
	Content       string    `json:"content"`
}

// ErrUnknownIdentity indicates the sender never initialized a session.
var ErrUnknownIdentity = errors.New("identity not registered on network")

// Network is the connector to the decentralized messaging network. Delivery
// and ordering guarantees belong to the network, not this process.
type Network interface {
	// Register announces an identity, making it reachable by peers.
	Register(ctx context.Context, address string) error
	// CanMessage reports whether the peer has ever initialized a session.
	CanMessage(ctx context.Context, address string) (bool, error)
	NewConversation(ctx context.Context, self, peer string) (Conversation, error)
	Send(ctx context.Context, self, peer, content string) (Message, error)
	Messages(ctx context.Context, self, peer string) ([]Message, error)
	Conversations(ctx context.Context, self string) ([]Conversation, error)
}

// SimulatedNetwork is an in-process Network. Two identities registered with
// the same instance share conversation threads, which is enough for the demo
// front end to exchange messages between browser tabs.
type SimulatedNetwork struct {
	mu         sync.RWMutex
	identities map[string]bool
	threads    map[string][]Message               // keyed by normalized pair
	convs      map[string]map[string]Conversation // self -> peer -> conversation
	now        func() time.Time
}

// NewSimulatedNetwork builds an empty simulated network.
func NewSimulatedNetwork() *SimulatedNetwork {
	return &SimulatedNetwork{
		identities: make(map[string]bool),
		threads:    make(map[string][]Message),
		convs:      make(map[string]map[string]Conversation),
		now:        time.Now,
	}
}

// Register marks the identity reachable.
func (n *SimulatedNetwork) Register(_ context.Context, address string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.identities[normalize(address)] = true
	return nil
}

// CanMessage reports whether the peer has registered.
func (n *SimulatedNetwork) CanMessage(_ context.Context, address string) (bool, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.identities[normalize(address)], nil
}

// NewConversation records a thread with the peer, creating it if needed.
func (n *SimulatedNetwork) NewConversation(_ context.Context, self, peer string) (Conversation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conversationLocked(self, peer), nil
}

// Send appends a message to the shared thread, creating the conversation on
// both sides if needed.
func (n *SimulatedNetwork) Send(_ context.Context, self, peer, content string) (Message, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.identities[normalize(self)] {
		return Message{}, ErrUnknownIdentity
	}
	n.conversationLocked(self, peer)
	n.conversationLocked(peer, self)

	message := Message{
		ID:            uuid.NewString(),
		SenderAddress: self,
		Sent:          n.now().UTC(),
		Content:       content,
	}
	key := pairKey(self, peer)
	n.threads[key] = append(n.threads[key], message)
	return message, nil
}

// Messages returns the shared thread with the peer in send order.
func (n *SimulatedNetwork) Messages(_ context.Context, self, peer string) ([]Message, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	thread := n.threads[pairKey(self, peer)]
	out := make([]Message, len(thread))
	copy(out, thread)
	return out, nil
}

// Conversations lists the identity's threads, newest first.
func (n *SimulatedNetwork) Conversations(_ context.Context, self string) ([]Conversation, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Conversation, 0, len(n.convs[normalize(self)]))
	for _, conv := range n.convs[normalize(self)] {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (n *SimulatedNetwork) conversationLocked(self, peer string) Conversation {
	selfKey := normalize(self)
	if n.convs[selfKey] == nil {
		n.convs[selfKey] = make(map[string]Conversation)
	}
	peerKey := normalize(peer)
	if conv, ok := n.convs[selfKey][peerKey]; ok {
		return conv
	}
	conv := Conversation{PeerAddress: peer, CreatedAt: n.now().UTC()}
	n.convs[selfKey][peerKey] = conv
	return conv
}

func normalize(address string) string {
	return strings.ToLower(address)
}

func pairKey(a, b string) string {
	pair := []string{normalize(a), normalize(b)}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}
