package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidKey indicates the provided private key could not be parsed.
	ErrInvalidKey = errors.New("invalid private key")

	// ErrInitFailed indicates session creation against the network failed.
	ErrInitFailed = errors.New("messaging session initialization failed")
)

const peerUnreachableWarning = "Peer is not on the messaging network yet. Messages may not be delivered until they join."

// Client is a session handle bound to one wallet identity.
type Client struct {
	Address string
}

// Service memoizes one network session per private key and exposes
// conversation and message pass-throughs.
type Service struct {
	network Network

	mu      sync.Mutex
	clients map[string]*Client // keyed by raw private key value, never evicted
}

// NewService builds the messaging session shim over the given network.
func NewService(network Network) *Service {
	return &Service{network: network, clients: make(map[string]*Client)}
}

// GetOrCreateClient returns the cached session for the key or derives the
// wallet identity and creates a new one.
func (s *Service) GetOrCreateClient(ctx context.Context, privateKey string) (*Client, error) {
	s.mu.Lock()
	if client, ok := s.clients[privateKey]; ok {
		s.mu.Unlock()
		return client, nil
	}
	s.mu.Unlock()

	address, err := deriveAddress(privateKey)
	if err != nil {
		return nil, err
	}
	if err := s.network.Register(ctx, address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	client := &Client{Address: address}
	s.mu.Lock()
	// A racing call may have registered the same key; the network session is
	// idempotent so either handle is fine to keep.
	if existing, ok := s.clients[privateKey]; ok {
		client = existing
	} else {
		s.clients[privateKey] = client
	}
	s.mu.Unlock()
	return client, nil
}

// ListConversations returns the client's threads.
func (s *Service) ListConversations(ctx context.Context, client *Client) ([]Conversation, error) {
	return s.network.Conversations(ctx, client.Address)
}

// StartConversation opens a thread with the peer. An unreachable peer still
// gets a local conversation carrying a non-fatal warning, favoring
// availability over strict reachability.
func (s *Service) StartConversation(ctx context.Context, client *Client, peerAddress string) (Conversation, error) {
	reachable, err := s.network.CanMessage(ctx, peerAddress)
	if err != nil {
		return Conversation{}, fmt.Errorf("probe peer: %w", err)
	}
	conversation, err := s.network.NewConversation(ctx, client.Address, peerAddress)
	if err != nil {
		return Conversation{}, err
	}
	if !reachable {
		conversation.Warning = peerUnreachableWarning
	}
	return conversation, nil
}

// SendMessage delivers content to the peer, creating the thread if needed.
func (s *Service) SendMessage(ctx context.Context, client *Client, peerAddress, content string) (Message, error) {
	return s.network.Send(ctx, client.Address, peerAddress, content)
}

// ListMessages returns the thread with the peer in send order.
func (s *Service) ListMessages(ctx context.Context, client *Client, peerAddress string) ([]Message, error) {
	return s.network.Messages(ctx, client.Address, peerAddress)
}

func deriveAddress(privateKey string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}
