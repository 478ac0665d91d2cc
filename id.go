package openshelf

import "github.com/xraph/openshelf/id"

// ID is the primary identifier type for all OpenShelf records.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// ParseBookID parses a book ID string such as "book_01h2xcejqtf2nbrexx3vqjhp41".
func ParseBookID(s string) (id.BookID, error) { return id.ParseBookID(s) }
