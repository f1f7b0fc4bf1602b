package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

type orderFile struct {
	ActiveClient string         `yaml:"activeClient"`
	Clients      map[string]int `yaml:"clients"`
}

// OrderStore persists the rotation order of clients and the last active host.
type OrderStore struct {
	path string

	mu   sync.Mutex
	data orderFile
}

// LoadOrderStore reads path. A missing file yields an empty store that is
// created on first save.
func LoadOrderStore(path string) (*OrderStore, error) {
	s := &OrderStore{path: path, data: orderFile{Clients: map[string]int{}}}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read client order: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse client order %s: %w", path, err)
	}
	if s.data.Clients == nil {
		s.data.Clients = map[string]int{}
	}
	normalized := make(map[string]int, len(s.data.Clients))
	for k, v := range s.data.Clients {
		normalized[normalize(k)] = v
	}
	s.data.Clients = normalized
	s.data.ActiveClient = normalize(s.data.ActiveClient)
	return s, nil
}

// ActiveClient returns the remembered active host address.
func (s *OrderStore) ActiveClient() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ActiveClient
}

// SetActiveClient remembers addr as the active host.
func (s *OrderStore) SetActiveClient(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr = normalize(addr)
	if s.data.ActiveClient == addr {
		return nil
	}
	s.data.ActiveClient = addr
	return s.saveLocked()
}

// Index returns the stored position of addr, or -1.
func (s *OrderStore) Index(addr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.data.Clients[normalize(addr)]; ok {
		return i
	}
	return -1
}

// Sort orders addrs by stored position. Addresses without one are appended
// in their given order and receive the next free positions.
func (s *OrderStore) Sort(addrs []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := 0
	for _, v := range s.data.Clients {
		next = max(next, v+1)
	}
	added := false
	for _, a := range addrs {
		if _, ok := s.data.Clients[a]; !ok {
			s.data.Clients[a] = next
			next++
			added = true
		}
	}
	if added {
		_ = s.saveLocked()
	}

	out := slices.Clone(addrs)
	slices.SortStableFunc(out, func(a, b string) int {
		return s.data.Clients[a] - s.data.Clients[b]
	})
	return out
}

// SetOrder stores addrs as positions 0..n-1. Other known addresses keep
// their relative order after them.
func (s *OrderStore) SetOrder(addrs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rest := slices.Collect(maps.Keys(s.data.Clients))
	rest = slices.DeleteFunc(rest, func(a string) bool { return slices.Contains(addrs, a) })
	slices.SortFunc(rest, func(a, b string) int { return s.data.Clients[a] - s.data.Clients[b] })

	clients := make(map[string]int, len(addrs)+len(rest))
	for i, a := range append(slices.Clone(addrs), rest...) {
		clients[a] = i
	}
	s.data.Clients = clients
	return s.saveLocked()
}

func (s *OrderStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
