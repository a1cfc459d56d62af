package node

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CrisRain/Lumina/internal/config"
)

// Node is a remote Lumina instance managed from this panel. The bearer token
// is stored but never exposed through the API.
type Node struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BaseURL   string `json:"base_url"`
	Token     string `json:"token"`
	Enabled   bool   `json:"enabled"`
	CreatedAt int64  `json:"created_at"`
}

// PublicNode is the API-safe view of a Node.
type PublicNode struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	BaseURL         string `json:"base_url"`
	Enabled         bool   `json:"enabled"`
	CreatedAt       int64  `json:"created_at"`
	TokenConfigured bool   `json:"token_configured"`
}

// Sentinel errors for handler status mapping.
var (
	ErrNotFound  = fmt.Errorf("node not found")
	ErrDuplicate = fmt.Errorf("a node with the same base URL already exists")
)

// Manager persists the node registry in the config store and performs the
// HTTP fanout to remote panels.
type Manager struct {
	mu     sync.Mutex
	store  *config.Store
	client nodeClient
}

func NewManager(store *config.Store) *Manager {
	timeout := time.Duration(config.GetEnvInt("NODE_REQUEST_TIMEOUT", 8)) * time.Second
	return &Manager{
		store:  store,
		client: newHTTPNodeClient(timeout),
	}
}

// normalizeBaseURL reduces a user-supplied URL to scheme://host[:port].
func normalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		value = "http://" + value
	}

	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid base URL")
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

func (n Node) public() PublicNode {
	return PublicNode{
		ID:              n.ID,
		Name:            n.Name,
		BaseURL:         n.BaseURL,
		Enabled:         n.Enabled,
		CreatedAt:       n.CreatedAt,
		TokenConfigured: n.Token != "",
	}
}

// load reads the registry, silently dropping malformed entries the way an
// operator-edited config file can produce them.
func (m *Manager) load() []Node {
	var nodes []Node
	m.store.Get(config.KeyRemoteNodes, &nodes)

	valid := nodes[:0]
	changed := false
	for _, n := range nodes {
		n.Name = strings.TrimSpace(n.Name)
		if n.Name == "" || n.BaseURL == "" {
			changed = true
			continue
		}
		normalized, err := normalizeBaseURL(n.BaseURL)
		if err != nil {
			changed = true
			continue
		}
		if normalized != n.BaseURL {
			n.BaseURL = normalized
			changed = true
		}
		if n.ID == "" {
			n.ID = newNodeID()
			changed = true
		}
		if n.CreatedAt == 0 {
			n.CreatedAt = time.Now().Unix()
			changed = true
		}
		valid = append(valid, n)
	}
	if changed {
		m.save(valid)
	}
	return valid
}

func (m *Manager) save(nodes []Node) {
	_ = m.store.Set(config.KeyRemoteNodes, nodes)
}

func newNodeID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// List returns the public view of every registered node.
func (m *Manager) List() []PublicNode {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := m.load()
	public := make([]PublicNode, 0, len(nodes))
	for _, n := range nodes {
		public = append(public, n.public())
	}
	return public
}

// Get returns the full record (token included) for internal use.
func (m *Manager) Get(id string) (Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.load() {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

func (m *Manager) Add(name, baseURL, token string, enabled bool) (PublicNode, error) {
	cleanName := strings.TrimSpace(name)
	if cleanName == "" {
		return PublicNode{}, fmt.Errorf("node name is required")
	}
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return PublicNode{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := m.load()
	for _, n := range nodes {
		if n.BaseURL == normalized {
			return PublicNode{}, ErrDuplicate
		}
	}

	node := Node{
		ID:        newNodeID(),
		Name:      cleanName,
		BaseURL:   normalized,
		Token:     strings.TrimSpace(token),
		Enabled:   enabled,
		CreatedAt: time.Now().Unix(),
	}
	m.save(append(nodes, node))
	return node.public(), nil
}

// Update applies the non-nil fields to the node with the given id.
func (m *Manager) Update(id string, name, baseURL, token *string, enabled *bool) (PublicNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := m.load()
	idx := -1
	for i, n := range nodes {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return PublicNode{}, ErrNotFound
	}

	target := &nodes[idx]
	if name != nil {
		clean := strings.TrimSpace(*name)
		if clean == "" {
			return PublicNode{}, fmt.Errorf("node name cannot be empty")
		}
		target.Name = clean
	}
	if baseURL != nil {
		normalized, err := normalizeBaseURL(*baseURL)
		if err != nil {
			return PublicNode{}, err
		}
		for i, n := range nodes {
			if i != idx && n.BaseURL == normalized {
				return PublicNode{}, ErrDuplicate
			}
		}
		target.BaseURL = normalized
	}
	if token != nil {
		target.Token = strings.TrimSpace(*token)
	}
	if enabled != nil {
		target.Enabled = *enabled
	}

	m.save(nodes)
	return target.public(), nil
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := m.load()
	remaining := nodes[:0]
	for _, n := range nodes {
		if n.ID != id {
			remaining = append(remaining, n)
		}
	}
	if len(remaining) == len(nodes) {
		return false
	}
	m.save(remaining)
	return true
}
