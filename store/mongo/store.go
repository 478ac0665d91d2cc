// Package mongo implements store.Store on MongoDB.
//
// Commit runs inside a session transaction, so it needs a replica set or a
// sharded cluster. The book update is conditional on the expected version
// and balances move with $inc.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/openshelf"
	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/purchase"
	"github.com/xraph/openshelf/store"
)

// Collection name constants.
const (
	colBooks       = "openshelf_books"
	colBalances    = "openshelf_balances"
	colTransfers   = "openshelf_transfers"
	colReceipts    = "openshelf_receipts"
	colCollections = "openshelf_collections"
	colTokens      = "openshelf_tokens"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri and uses the named database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("openshelf/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("openshelf/mongo: ping: %w", err)
	}
	return New(client, database), nil
}

// New wraps a connected client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates indexes for all openshelf collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: openshelf/mongo: %s indexes: %w", openshelf.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		if errors.Is(err, mongo.ErrClientDisconnected) {
			return openshelf.ErrStoreClosed
		}
		return fmt.Errorf("openshelf/mongo: ping: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ==================== Book Store ====================

func (s *Store) CreateBook(ctx context.Context, b *book.Book) error {
	_, err := s.db.Collection(colBooks).InsertOne(ctx, toBookModel(b))
	if mongo.IsDuplicateKeyError(err) {
		return openshelf.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("openshelf/mongo: create book: %w", err)
	}
	return nil
}

func (s *Store) GetBook(ctx context.Context, bookID id.BookID) (*book.Book, error) {
	var m bookModel
	err := s.db.Collection(colBooks).FindOne(ctx, bson.M{"_id": bookID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, openshelf.ErrBookNotFound
		}
		return nil, fmt.Errorf("openshelf/mongo: get book: %w", err)
	}
	return fromBookModel(&m)
}

func (s *Store) ListBooks(ctx context.Context, opts book.ListOpts) ([]*book.Book, error) {
	filter := bson.M{}
	if opts.Author != "" {
		filter["author"] = opts.Author
	}
	if opts.Genre != "" {
		filter["genre"] = opts.Genre
	}
	if opts.MinStakers > 0 {
		filter["staker_count"] = bson.M{"$gte": opts.MinStakers}
	}

	var models []bookModel
	if err := s.find(ctx, colBooks, filter, bson.D{{Key: "_id", Value: 1}}, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("openshelf/mongo: list books: %w", err)
	}
	result := make([]*book.Book, 0, len(models))
	for i := range models {
		b, err := fromBookModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("openshelf/mongo: decode book: %w", err)
		}
		result = append(result, b)
	}
	return result, nil
}

// ==================== Account Store ====================

func (s *Store) Deposit(ctx context.Context, t *account.Transfer) error {
	if t.From != "" {
		return fmt.Errorf("%w: deposit with a source account", openshelf.ErrInvalidInput)
	}
	err := s.transaction(ctx, func(ctx context.Context) error {
		have, err := s.balance(ctx, t.To)
		if err != nil {
			return err
		}
		if _, err := account.Credit(have, t.Amount); err != nil {
			return settleError(err)
		}
		if err := s.credit(ctx, t.To, t.Amount); err != nil {
			return err
		}
		_, err = s.db.Collection(colTransfers).InsertOne(ctx, toTransferModel(t))
		return err
	})
	if err != nil {
		return fmt.Errorf("openshelf/mongo: deposit: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, name string) (int64, error) {
	amount, err := s.balance(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("openshelf/mongo: get balance: %w", err)
	}
	return amount, nil
}

func (s *Store) ListTransfers(ctx context.Context, opts account.ListOpts) ([]*account.Transfer, error) {
	filter := bson.M{}
	if opts.Account != "" {
		filter["$or"] = bson.A{bson.M{"from": opts.Account}, bson.M{"to": opts.Account}}
	}
	if !opts.BookID.IsNil() {
		filter["book_id"] = opts.BookID.String()
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	var models []transferModel
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	if err := s.find(ctx, colTransfers, filter, sort, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("openshelf/mongo: list transfers: %w", err)
	}
	result := make([]*account.Transfer, 0, len(models))
	for i := range models {
		t, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("openshelf/mongo: decode transfer: %w", err)
		}
		result = append(result, t)
	}
	return result, nil
}

// ==================== Purchase Store ====================

func (s *Store) GetReceipt(ctx context.Context, receiptID id.PurchaseID) (*purchase.Receipt, error) {
	var m receiptModel
	err := s.db.Collection(colReceipts).FindOne(ctx, bson.M{"_id": receiptID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, openshelf.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("openshelf/mongo: get receipt: %w", err)
	}
	return fromReceiptModel(&m)
}

func (s *Store) ListReceipts(ctx context.Context, opts purchase.ListOpts) ([]*purchase.Receipt, error) {
	filter := bson.M{}
	if !opts.BookID.IsNil() {
		filter["book_id"] = opts.BookID.String()
	}
	if opts.Buyer != "" {
		filter["buyer"] = opts.Buyer
	}
	if len(opts.AccessStatuses) > 0 {
		statuses := make([]string, len(opts.AccessStatuses))
		for i, st := range opts.AccessStatuses {
			statuses[i] = string(st)
		}
		filter["access.status"] = bson.M{"$in": statuses}
	}

	var models []receiptModel
	if err := s.find(ctx, colReceipts, filter, bson.D{{Key: "_id", Value: 1}}, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("openshelf/mongo: list receipts: %w", err)
	}
	result := make([]*purchase.Receipt, 0, len(models))
	for i := range models {
		r, err := fromReceiptModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("openshelf/mongo: decode receipt: %w", err)
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *Store) UpdateReceiptAccess(ctx context.Context, receiptID id.PurchaseID, state purchase.AccessState) error {
	res, err := s.db.Collection(colReceipts).UpdateOne(ctx,
		bson.M{"_id": receiptID.String()},
		bson.M{"$set": bson.M{"access": toAccessStateModel(state)}},
	)
	if err != nil {
		return fmt.Errorf("openshelf/mongo: update receipt access: %w", err)
	}
	if res.MatchedCount == 0 {
		return openshelf.ErrReceiptNotFound
	}
	return nil
}

// ==================== Access Gate Store ====================

func (s *Store) SaveCollection(ctx context.Context, c *accessgate.Collection) error {
	m := &collectionModel{Owner: c.Owner, CollectionID: c.CollectionID, CreatedAt: c.CreatedAt}
	_, err := s.db.Collection(colCollections).InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return openshelf.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("openshelf/mongo: save collection: %w", err)
	}
	return nil
}

func (s *Store) GetCollection(ctx context.Context, owner string) (*accessgate.Collection, error) {
	var m collectionModel
	err := s.db.Collection(colCollections).FindOne(ctx, bson.M{"_id": owner}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, openshelf.ErrCollectionNotFound
		}
		return nil, fmt.Errorf("openshelf/mongo: get collection: %w", err)
	}
	return &accessgate.Collection{Owner: m.Owner, CollectionID: m.CollectionID, CreatedAt: m.CreatedAt}, nil
}

func (s *Store) SaveToken(ctx context.Context, t *accessgate.Token) error {
	m := toTokenModel(t)
	_, err := s.db.Collection(colTokens).ReplaceOne(ctx,
		bson.M{"_id": m.ID}, m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("openshelf/mongo: save token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, bookID id.BookID, owner string) (*accessgate.Token, error) {
	var m tokenModel
	err := s.db.Collection(colTokens).FindOne(ctx, bson.M{"_id": tokenKey(bookID, owner)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, openshelf.ErrTokenNotFound
		}
		return nil, fmt.Errorf("openshelf/mongo: get token: %w", err)
	}
	return fromTokenModel(&m)
}

// ==================== Commit ====================

func (s *Store) Commit(ctx context.Context, ch *store.Change) error {
	next := toBookModel(ch.Book)
	next.Version = ch.Book.Version + 1

	err := s.transaction(ctx, func(ctx context.Context) error {
		books := s.db.Collection(colBooks)

		var cur bookModel
		err := books.FindOne(ctx, bson.M{"_id": next.ID}).Decode(&cur)
		if isNoDocuments(err) {
			return openshelf.ErrBookNotFound
		}
		if err != nil {
			return err
		}
		if cur.Version != ch.Book.Version {
			return openshelf.ErrConflict
		}

		if ch.Receipt != nil {
			n, err := s.db.Collection(colReceipts).CountDocuments(ctx, bson.M{"_id": ch.Receipt.ID.String()})
			if err != nil {
				return err
			}
			if n > 0 {
				return openshelf.ErrAlreadyExists
			}
		}

		start := make(map[string]int64)
		final, err := account.Settle(ch.Transfers, func(name string) (int64, error) {
			amount, err := s.balance(ctx, name)
			start[name] = amount
			return amount, err
		})
		if err != nil {
			return settleError(err)
		}

		res, err := books.ReplaceOne(ctx, bson.M{"_id": next.ID, "version": ch.Book.Version}, next)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return openshelf.ErrConflict
		}

		for name, amount := range final {
			if delta := amount - start[name]; delta != 0 {
				if err := s.credit(ctx, name, delta); err != nil {
					return err
				}
			}
		}
		if len(ch.Transfers) > 0 {
			docs := make([]any, len(ch.Transfers))
			for i, t := range ch.Transfers {
				docs[i] = toTransferModel(t)
			}
			if _, err := s.db.Collection(colTransfers).InsertMany(ctx, docs); err != nil {
				return err
			}
		}
		if ch.Receipt != nil {
			_, err := s.db.Collection(colReceipts).InsertOne(ctx, toReceiptModel(ch.Receipt))
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("openshelf/mongo: commit: %w", err)
	}
	ch.Book.Version = next.Version
	return nil
}

// ==================== helpers ====================

// transaction runs fn in a session transaction. The driver retries fn on
// transient errors, so fn must re-read everything it depends on.
func (s *Store) transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (s *Store) balance(ctx context.Context, name string) (int64, error) {
	var m balanceModel
	err := s.db.Collection(colBalances).FindOne(ctx, bson.M{"_id": name}).Decode(&m)
	if isNoDocuments(err) {
		return 0, nil
	}
	return m.Amount, err
}

func (s *Store) credit(ctx context.Context, name string, delta int64) error {
	_, err := s.db.Collection(colBalances).UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{
			"$inc": bson.M{"amount": delta},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (s *Store) find(ctx context.Context, col string, filter bson.M, sort bson.D, limit, offset int, out any) error {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	cursor, err := s.db.Collection(col).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func settleError(err error) error {
	var sf *account.ShortfallError
	if errors.As(err, &sf) {
		return fmt.Errorf("%w: %v", openshelf.ErrInsufficientFunds, sf)
	}
	if errors.Is(err, account.ErrOverflow) {
		return fmt.Errorf("%w: %v", openshelf.ErrInvalidInput, err)
	}
	return err
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colBooks: {
			{Keys: bson.D{{Key: "author", Value: 1}}},
			{Keys: bson.D{{Key: "genre", Value: 1}}},
		},
		colTransfers: {
			{Keys: bson.D{{Key: "from", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "to", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "book_id", Value: 1}}},
		},
		colReceipts: {
			{Keys: bson.D{{Key: "book_id", Value: 1}, {Key: "buyer", Value: 1}}},
			{Keys: bson.D{{Key: "access.status", Value: 1}}},
		},
		colTokens: {
			{
				Keys:    bson.D{{Key: "book_id", Value: 1}, {Key: "owner", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
