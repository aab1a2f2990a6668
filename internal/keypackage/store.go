package keypackage

import (
	"encoding/hex"
	"sync"

	"github.com/marmot-go/marmotgroup/internal/marmoterr"
)

// Store is a content-addressed in-memory KeyPackageStore: a public/private
// key package is filed under the hex of its Reference hash, computed over
// the public package's wire encoding. Entries live only in memory and are
// not persisted.
type Store struct {
	mu   sync.Mutex
	byID map[string]KeyPackage
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{byID: map[string]KeyPackage{}}
}

// Put files kp under its content-addressed reference, returning the hex
// reference string callers use to retrieve it later.
func (s *Store) Put(kp KeyPackage) (string, error) {
	ref, err := Reference(kp.Public)
	if err != nil {
		return "", err
	}
	id := hex.EncodeToString(ref[:])
	s.mu.Lock()
	s.byID[id] = kp
	s.mu.Unlock()
	return id, nil
}

// Get looks up a previously stored key package by its hex reference.
func (s *Store) Get(ref string) (KeyPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kp, ok := s.byID[ref]
	if !ok {
		return KeyPackage{}, marmoterr.Unreadable("key package not found: "+ref, nil)
	}
	return kp, nil
}

// Remove discards a stored key package, e.g. once it has been consumed by
// an add-member transaction or explicitly retracted.
func (s *Store) Remove(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, ref)
}

// Count reports how many key packages are currently stored.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
