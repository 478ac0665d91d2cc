// Package store defines the persistence contract shared by every OpenShelf
// backend.
package store

import (
	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/purchase"
)

// Change is one atomic unit of work against a single book.
//
// Commit must apply all of it or none of it:
//
//  1. The stored book's Version must equal Book.Version, otherwise the
//     commit fails with openshelf.ErrConflict.
//  2. Transfers are settled in order with account.Settle. A debit larger
//     than the running balance fails the commit with
//     openshelf.ErrInsufficientFunds.
//  3. Book is written with Version+1, every transfer is journaled and
//     Receipt, when set, is inserted.
//
// On success Book.Version holds the new version.
type Change struct {
	Book      *book.Book
	Transfers []*account.Transfer
	Receipt   *purchase.Receipt
}
