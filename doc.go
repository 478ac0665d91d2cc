// Package openshelf provides the core of a decentralized book marketplace:
// a registry of books and priced chapters, a purchase processor that splits
// every sale between the author, the book's stakers and the platform, a
// stake pool with claimable earnings, and an access gate that issues
// ownership tokens through an external minting service.
//
// OpenShelf is designed as a library, not a service. Every state change is
// one atomic commit against a store.Store; a failed operation leaves no
// partial effect.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/openshelf"
//	    "github.com/xraph/openshelf/store/memory"
//	)
//
//	shelf, err := openshelf.New(memory.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := shelf.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer shelf.Stop()
//
// # Core Concepts
//
// Authors publish books made of chapters:
//
//	b, err := shelf.CreateBook(ctx, openshelf.CreateBookInput{
//	    Author:      "ursula",
//	    Title:       "The Dispossessed",
//	    Description: "An ambiguous utopia",
//	    Genre:       "scifi",
//	    ImageURL:    "https://img.example/dispossessed.png",
//	    Chapters: []openshelf.ChapterInput{
//	        {Index: 0, Name: "Anarres", URL: "https://c/0", Price: 10},
//	        {Index: 1, Name: "Urras", URL: "https://c/1", Price: 20},
//	    },
//	})
//
// Readers buy chapters or the whole book from a funded account:
//
//	shelf.Deposit(ctx, "bob", 100)
//	rc, err := shelf.PurchaseFullBook(ctx, openshelf.PurchaseBookInput{
//	    BookID: b.ID, Buyer: "bob",
//	})
//
// Stakers back a book and earn part of every later sale:
//
//	shelf.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 50})
//	paid, err := shelf.ClaimStakerEarnings(ctx, openshelf.ClaimInput{BookID: b.ID, Staker: "sam"})
//
// # Revenue split
//
// The split is expressed in basis points (split.Policy). The stake and
// platform shares are rounded down and the author receives the remainder,
// so the three shares always sum to the price. When a book has no stakers
// the stake share goes to the author.
//
// # Access tokens
//
// Purchases made with NeedAccessToken mint or update the buyer's token
// through the configured accessgate.Minter after the purchase commits. A
// minting failure is recorded on the receipt and can be retried with
// RetryPendingMints; it never undoes the purchase.
//
// # Stores
//
// Backends live under store/: memory, bolt, sqlite, postgres and mongo.
// Multi-process deployments should pair a shared store with
// lock/redislock.
package openshelf
