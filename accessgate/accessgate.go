// Package accessgate describes the external collaborator that issues
// ownership tokens (NFTs) for purchased books and chapters, and the records
// kept about the collections and tokens it returns.
package accessgate

import (
	"context"
	"time"

	"github.com/xraph/openshelf/id"
)

// Minter is the asset-issuing collaborator. Implementations talk to a chain
// or a custodial service; calls may be slow and may fail independently of
// the ledger.
type Minter interface {
	// CreateCollection creates a collection owned by owner and returns its id.
	CreateCollection(ctx context.Context, owner string) (string, error)
	// MintAsset issues a new asset and returns its id.
	MintAsset(ctx context.Context, req MintRequest) (string, error)
	// UpdateAsset merges attrs into the attributes of an existing asset.
	UpdateAsset(ctx context.Context, assetID string, attrs map[string]string) error
}

// MintRequest describes an asset to issue.
type MintRequest struct {
	RequestID    id.MintID         `json:"request_id"`
	Owner        string            `json:"owner"`
	CollectionID string            `json:"collection_id,omitempty"`
	BookID       id.BookID         `json:"book_id"`
	Name         string            `json:"name"`
	URI          string            `json:"uri"`
	Attributes   map[string]string `json:"attributes"`
}

// Collection is the per-user collection returned by the collaborator.
type Collection struct {
	Owner        string    `json:"owner"`
	CollectionID string    `json:"collection_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Token is the single access token held by an owner for a book. Each
// purchase adds one attribute to it.
type Token struct {
	BookID     id.BookID         `json:"book_id"`
	Owner      string            `json:"owner"`
	AssetID    string            `json:"asset_id"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Store persists collections and tokens.
type Store interface {
	// SaveCollection returns an already-exists error when owner has one.
	SaveCollection(ctx context.Context, c *Collection) error
	GetCollection(ctx context.Context, owner string) (*Collection, error)
	// SaveToken inserts or replaces the token for (BookID, Owner).
	SaveToken(ctx context.Context, t *Token) error
	GetToken(ctx context.Context, bookID id.BookID, owner string) (*Token, error)
}

// MergeAttributes returns a copy of base with extra applied on top.
func MergeAttributes(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Clone returns a copy of t with its own attribute map.
func (t *Token) Clone() *Token {
	cp := *t
	cp.Attributes = MergeAttributes(nil, t.Attributes)
	return &cp
}
