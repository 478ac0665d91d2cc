package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/purchase"
	"github.com/xraph/openshelf/types"
)

// ==================== Book models ====================

type bookModel struct {
	ID            string `gorm:"primaryKey;type:text"`
	Author        string `gorm:"type:text;not null;index"`
	Title         string `gorm:"type:text;not null"`
	Description   string `gorm:"type:text;not null;default:''"`
	Genre         string `gorm:"type:text;not null;default:'';index"`
	ImageURL      string `gorm:"type:text;not null;default:''"`
	FullBookPrice int64  `gorm:"not null;default:0"`
	TotalStake    int64  `gorm:"not null;default:0"`
	StakerCount   int    `gorm:"not null;default:0"`
	Chapters      string `gorm:"type:jsonb;not null"`
	Stakes        string `gorm:"type:jsonb;not null"`
	Readers       string `gorm:"type:jsonb;not null"`
	Version       int64  `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (bookModel) TableName() string { return "openshelf_books" }

func toBookModel(b *book.Book) (*bookModel, error) {
	chapters, err := marshalList(b.Chapters)
	if err != nil {
		return nil, err
	}
	stakes, err := marshalList(b.Stakes)
	if err != nil {
		return nil, err
	}
	readers, err := marshalList(b.Readers)
	if err != nil {
		return nil, err
	}
	return &bookModel{
		ID:            b.ID.String(),
		Author:        b.Author,
		Title:         b.Title,
		Description:   b.Description,
		Genre:         b.Genre,
		ImageURL:      b.ImageURL,
		FullBookPrice: b.FullBookPrice,
		TotalStake:    b.TotalStake,
		StakerCount:   b.StakerCount(),
		Chapters:      chapters,
		Stakes:        stakes,
		Readers:       readers,
		Version:       b.Version,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}, nil
}

func fromBookModel(m *bookModel) (*book.Book, error) {
	bookID, err := id.ParseBookID(m.ID)
	if err != nil {
		return nil, err
	}
	b := &book.Book{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            bookID,
		Author:        m.Author,
		Title:         m.Title,
		Description:   m.Description,
		Genre:         m.Genre,
		ImageURL:      m.ImageURL,
		FullBookPrice: m.FullBookPrice,
		TotalStake:    m.TotalStake,
		Version:       m.Version,
	}
	if err := json.Unmarshal([]byte(m.Chapters), &b.Chapters); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(m.Stakes), &b.Stakes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(m.Readers), &b.Readers); err != nil {
		return nil, err
	}
	return b, nil
}

// ==================== Account models ====================

type balanceModel struct {
	Account   string `gorm:"primaryKey;type:text"`
	Amount    int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (balanceModel) TableName() string { return "openshelf_balances" }

type transferModel struct {
	Seq         int64  `gorm:"primaryKey;autoIncrement"`
	ID          string `gorm:"type:text;not null;uniqueIndex"`
	BookID      string `gorm:"type:text;not null;default:'';index"`
	FromAccount string `gorm:"type:text;not null;default:'';index"`
	ToAccount   string `gorm:"type:text;not null;index"`
	Amount      int64  `gorm:"not null"`
	Kind        string `gorm:"type:text;not null"`
	Reference   string `gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time
}

func (transferModel) TableName() string { return "openshelf_transfers" }

func toTransferModel(t *account.Transfer) *transferModel {
	return &transferModel{
		ID:          t.ID.String(),
		BookID:      t.BookID.String(),
		FromAccount: t.From,
		ToAccount:   t.To,
		Amount:      t.Amount,
		Kind:        string(t.Kind),
		Reference:   t.Reference,
		CreatedAt:   t.CreatedAt,
	}
}

func fromTransferModel(m *transferModel) (*account.Transfer, error) {
	transferID, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, err
	}
	t := &account.Transfer{
		ID:        transferID,
		From:      m.FromAccount,
		To:        m.ToAccount,
		Amount:    m.Amount,
		Kind:      account.Kind(m.Kind),
		Reference: m.Reference,
		CreatedAt: m.CreatedAt,
	}
	if m.BookID != "" {
		if t.BookID, err = id.ParseBookID(m.BookID); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ==================== Purchase models ====================

type receiptModel struct {
	ID               string `gorm:"primaryKey;type:text"`
	BookID           string `gorm:"type:text;not null;index:idx_openshelf_receipts_book_buyer"`
	Buyer            string `gorm:"type:text;not null;index:idx_openshelf_receipts_book_buyer"`
	Mode             string `gorm:"type:text;not null"`
	ChapterIndex     int    `gorm:"not null;default:0"`
	Price            int64  `gorm:"not null"`
	Currency         string `gorm:"type:text;not null;default:''"`
	Shares           string `gorm:"type:jsonb;not null"`
	Accruals         string `gorm:"type:jsonb;not null"`
	Accrued          int64  `gorm:"not null;default:0"`
	Promoted         bool   `gorm:"not null;default:false"`
	NeedsAccessToken bool   `gorm:"not null;default:false"`
	AccessStatus     string `gorm:"type:text;not null;default:'none';index"`
	AccessAssetID    string `gorm:"type:text;not null;default:''"`
	AccessAttempts   int    `gorm:"not null;default:0"`
	AccessLastError  string `gorm:"type:text;not null;default:''"`
	AccessUpdatedAt  *time.Time
	CreatedAt        time.Time
}

func (receiptModel) TableName() string { return "openshelf_receipts" }

func toReceiptModel(r *purchase.Receipt) (*receiptModel, error) {
	shares, err := json.Marshal(r.Shares)
	if err != nil {
		return nil, err
	}
	accruals, err := marshalList(r.Accruals)
	if err != nil {
		return nil, err
	}
	return &receiptModel{
		ID:               r.ID.String(),
		BookID:           r.BookID.String(),
		Buyer:            r.Buyer,
		Mode:             string(r.Mode),
		ChapterIndex:     r.ChapterIndex,
		Price:            r.Price,
		Currency:         r.Currency,
		Shares:           string(shares),
		Accruals:         accruals,
		Accrued:          r.Accrued,
		Promoted:         r.Promoted,
		NeedsAccessToken: r.NeedsAccessToken,
		AccessStatus:     string(r.Access.Status),
		AccessAssetID:    r.Access.AssetID,
		AccessAttempts:   r.Access.Attempts,
		AccessLastError:  r.Access.LastError,
		AccessUpdatedAt:  timePtr(r.Access.UpdatedAt),
		CreatedAt:        r.CreatedAt,
	}, nil
}

func fromReceiptModel(m *receiptModel) (*purchase.Receipt, error) {
	receiptID, err := id.ParsePurchaseID(m.ID)
	if err != nil {
		return nil, err
	}
	bookID, err := id.ParseBookID(m.BookID)
	if err != nil {
		return nil, err
	}
	r := &purchase.Receipt{
		ID:               receiptID,
		BookID:           bookID,
		Buyer:            m.Buyer,
		Mode:             purchase.Mode(m.Mode),
		ChapterIndex:     m.ChapterIndex,
		Price:            m.Price,
		Currency:         m.Currency,
		Accrued:          m.Accrued,
		Promoted:         m.Promoted,
		NeedsAccessToken: m.NeedsAccessToken,
		Access: purchase.AccessState{
			Status:    purchase.AccessStatus(m.AccessStatus),
			AssetID:   m.AccessAssetID,
			Attempts:  m.AccessAttempts,
			LastError: m.AccessLastError,
		},
		CreatedAt: m.CreatedAt,
	}
	if m.AccessUpdatedAt != nil {
		r.Access.UpdatedAt = *m.AccessUpdatedAt
	}
	if err := json.Unmarshal([]byte(m.Shares), &r.Shares); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(m.Accruals), &r.Accruals); err != nil {
		return nil, err
	}
	return r, nil
}

// ==================== Access gate models ====================

type collectionModel struct {
	Owner        string `gorm:"primaryKey;type:text"`
	CollectionID string `gorm:"type:text;not null"`
	CreatedAt    time.Time
}

func (collectionModel) TableName() string { return "openshelf_collections" }

type tokenModel struct {
	BookID     string `gorm:"primaryKey;type:text"`
	Owner      string `gorm:"primaryKey;type:text"`
	AssetID    string `gorm:"type:text;not null"`
	Attributes string `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (tokenModel) TableName() string { return "openshelf_tokens" }

func toTokenModel(t *accessgate.Token) (*tokenModel, error) {
	attrs := t.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	return &tokenModel{
		BookID:     t.BookID.String(),
		Owner:      t.Owner,
		AssetID:    t.AssetID,
		Attributes: string(data),
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}, nil
}

func fromTokenModel(m *tokenModel) (*accessgate.Token, error) {
	bookID, err := id.ParseBookID(m.BookID)
	if err != nil {
		return nil, err
	}
	t := &accessgate.Token{
		BookID:    bookID,
		Owner:     m.Owner,
		AssetID:   m.AssetID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(m.Attributes), &t.Attributes); err != nil {
		return nil, err
	}
	return t, nil
}

// ==================== helpers ====================

// marshalList encodes s as a JSON array, never null.
func marshalList[T any](s []T) (string, error) {
	if s == nil {
		s = []T{}
	}
	data, err := json.Marshal(s)
	return string(data), err
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
