package accessgate

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrAssetNotFound is returned by MemoryMinter.UpdateAsset for unknown ids.
var ErrAssetNotFound = errors.New("accessgate: asset not found")

// Asset is an asset held by a MemoryMinter.
type Asset struct {
	ID           string
	Owner        string
	CollectionID string
	Name         string
	URI          string
	Attributes   map[string]string
}

// MemoryMinter is an in-process Minter for tests and local development.
// Failures can be injected with FailWith.
type MemoryMinter struct {
	mu          sync.Mutex
	collections map[string]string
	assets      map[string]*Asset
	failErr     error
	failCount   int
	calls       int
}

var _ Minter = (*MemoryMinter)(nil)

// NewMemoryMinter returns an empty MemoryMinter.
func NewMemoryMinter() *MemoryMinter {
	return &MemoryMinter{
		collections: make(map[string]string),
		assets:      make(map[string]*Asset),
	}
}

// FailWith makes the next n calls return err. A negative n fails every
// call until FailWith is called again with n == 0.
func (m *MemoryMinter) FailWith(err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
	m.failCount = n
}

func (m *MemoryMinter) fail() error {
	m.calls++
	if m.failErr == nil || m.failCount == 0 {
		return nil
	}
	if m.failCount > 0 {
		m.failCount--
	}
	return m.failErr
}

// CreateCollection implements Minter.
func (m *MemoryMinter) CreateCollection(_ context.Context, owner string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return "", err
	}
	cid := "col-" + uuid.NewString()
	m.collections[cid] = owner
	return cid, nil
}

// MintAsset implements Minter.
func (m *MemoryMinter) MintAsset(_ context.Context, req MintRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return "", err
	}
	a := &Asset{
		ID:           uuid.NewString(),
		Owner:        req.Owner,
		CollectionID: req.CollectionID,
		Name:         req.Name,
		URI:          req.URI,
		Attributes:   MergeAttributes(nil, req.Attributes),
	}
	m.assets[a.ID] = a
	return a.ID, nil
}

// UpdateAsset implements Minter.
func (m *MemoryMinter) UpdateAsset(_ context.Context, assetID string, attrs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	a, ok := m.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	a.Attributes = MergeAttributes(a.Attributes, attrs)
	return nil
}

// Asset returns a copy of the asset with the given id.
func (m *MemoryMinter) Asset(assetID string) (Asset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[assetID]
	if !ok {
		return Asset{}, false
	}
	cp := *a
	cp.Attributes = MergeAttributes(nil, a.Attributes)
	return cp, true
}

// AssetCount returns the number of minted assets.
func (m *MemoryMinter) AssetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.assets)
}

// Calls returns the number of collaborator calls made, failed ones included.
func (m *MemoryMinter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
