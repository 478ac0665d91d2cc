package mongo

import (
	"time"

	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/purchase"
	"github.com/xraph/openshelf/split"
	"github.com/xraph/openshelf/types"
)

// ==================== Book models ====================

type bookModel struct {
	ID            string         `bson:"_id"`
	Author        string         `bson:"author"`
	Title         string         `bson:"title"`
	Description   string         `bson:"description"`
	Genre         string         `bson:"genre"`
	ImageURL      string         `bson:"image_url"`
	FullBookPrice int64          `bson:"full_book_price"`
	TotalStake    int64          `bson:"total_stake"`
	StakerCount   int            `bson:"staker_count"`
	Chapters      []chapterModel `bson:"chapters"`
	Stakes        []stakeModel   `bson:"stakes"`
	Readers       []string       `bson:"readers"`
	Version       int64          `bson:"version"`
	CreatedAt     time.Time      `bson:"created_at"`
	UpdatedAt     time.Time      `bson:"updated_at"`
}

type chapterModel struct {
	Index   int      `bson:"index"`
	Name    string   `bson:"name"`
	URL     string   `bson:"url"`
	Price   int64    `bson:"price"`
	Readers []string `bson:"readers"`
}

type stakeModel struct {
	Staker    string    `bson:"staker"`
	Amount    int64     `bson:"amount"`
	Earnings  int64     `bson:"earnings"`
	Claimed   int64     `bson:"claimed"`
	CreatedAt time.Time `bson:"created_at"`
}

func toBookModel(b *book.Book) *bookModel {
	chapters := make([]chapterModel, len(b.Chapters))
	for i, c := range b.Chapters {
		chapters[i] = chapterModel{
			Index:   c.Index,
			Name:    c.Name,
			URL:     c.URL,
			Price:   c.Price,
			Readers: nonNil(c.Readers),
		}
	}
	stakes := make([]stakeModel, len(b.Stakes))
	for i, st := range b.Stakes {
		stakes[i] = stakeModel(st)
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
		Readers:       nonNil(b.Readers),
		Version:       b.Version,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
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
		Chapters:      make([]book.Chapter, len(m.Chapters)),
		Stakes:        make([]book.Stake, len(m.Stakes)),
		Readers:       nonNil(m.Readers),
		Version:       m.Version,
	}
	for i, c := range m.Chapters {
		b.Chapters[i] = book.Chapter{
			Index:   c.Index,
			Name:    c.Name,
			URL:     c.URL,
			Price:   c.Price,
			Readers: nonNil(c.Readers),
		}
	}
	for i, st := range m.Stakes {
		b.Stakes[i] = book.Stake(st)
	}
	return b, nil
}

// ==================== Account models ====================

type balanceModel struct {
	Account   string    `bson:"_id"`
	Amount    int64     `bson:"amount"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type transferModel struct {
	ID          string    `bson:"_id"`
	BookID      string    `bson:"book_id"`
	FromAccount string    `bson:"from"`
	ToAccount   string    `bson:"to"`
	Amount      int64     `bson:"amount"`
	Kind        string    `bson:"kind"`
	Reference   string    `bson:"reference"`
	CreatedAt   time.Time `bson:"created_at"`
}

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
	ID               string           `bson:"_id"`
	BookID           string           `bson:"book_id"`
	Buyer            string           `bson:"buyer"`
	Mode             string           `bson:"mode"`
	ChapterIndex     int              `bson:"chapter_index"`
	Price            int64            `bson:"price"`
	Currency         string           `bson:"currency"`
	Shares           sharesModel      `bson:"shares"`
	Accruals         []accrualModel   `bson:"accruals"`
	Accrued          int64            `bson:"accrued"`
	Promoted         bool             `bson:"promoted"`
	NeedsAccessToken bool             `bson:"needs_access_token"`
	Access           accessStateModel `bson:"access"`
	CreatedAt        time.Time        `bson:"created_at"`
}

type sharesModel struct {
	Author     int64 `bson:"author"`
	Stake      int64 `bson:"stake"`
	Platform   int64 `bson:"platform"`
	Redirected bool  `bson:"redirected"`
}

type accrualModel struct {
	Staker string `bson:"staker"`
	Amount int64  `bson:"amount"`
}

type accessStateModel struct {
	Status    string    `bson:"status"`
	AssetID   string    `bson:"asset_id"`
	Attempts  int       `bson:"attempts"`
	LastError string    `bson:"last_error"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toAccessStateModel(st purchase.AccessState) accessStateModel {
	return accessStateModel{
		Status:    string(st.Status),
		AssetID:   st.AssetID,
		Attempts:  st.Attempts,
		LastError: st.LastError,
		UpdatedAt: st.UpdatedAt,
	}
}

func toReceiptModel(r *purchase.Receipt) *receiptModel {
	accruals := make([]accrualModel, len(r.Accruals))
	for i, a := range r.Accruals {
		accruals[i] = accrualModel{Staker: a.Staker, Amount: a.Amount}
	}
	return &receiptModel{
		ID:               r.ID.String(),
		BookID:           r.BookID.String(),
		Buyer:            r.Buyer,
		Mode:             string(r.Mode),
		ChapterIndex:     r.ChapterIndex,
		Price:            r.Price,
		Currency:         r.Currency,
		Shares:           sharesModel(r.Shares),
		Accruals:         accruals,
		Accrued:          r.Accrued,
		Promoted:         r.Promoted,
		NeedsAccessToken: r.NeedsAccessToken,
		Access:           toAccessStateModel(r.Access),
		CreatedAt:        r.CreatedAt,
	}
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
		Shares:           split.Shares(m.Shares),
		Accrued:          m.Accrued,
		Promoted:         m.Promoted,
		NeedsAccessToken: m.NeedsAccessToken,
		Access: purchase.AccessState{
			Status:    purchase.AccessStatus(m.Access.Status),
			AssetID:   m.Access.AssetID,
			Attempts:  m.Access.Attempts,
			LastError: m.Access.LastError,
			UpdatedAt: m.Access.UpdatedAt,
		},
		CreatedAt: m.CreatedAt,
	}
	if len(m.Accruals) > 0 {
		r.Accruals = make([]split.Accrual, len(m.Accruals))
		for i, a := range m.Accruals {
			r.Accruals[i] = split.Accrual{Staker: a.Staker, Amount: a.Amount}
		}
	}
	return r, nil
}

// ==================== Access gate models ====================

type collectionModel struct {
	Owner        string    `bson:"_id"`
	CollectionID string    `bson:"collection_id"`
	CreatedAt    time.Time `bson:"created_at"`
}

type tokenModel struct {
	ID         string            `bson:"_id"`
	BookID     string            `bson:"book_id"`
	Owner      string            `bson:"owner"`
	AssetID    string            `bson:"asset_id"`
	Attributes map[string]string `bson:"attributes"`
	CreatedAt  time.Time         `bson:"created_at"`
	UpdatedAt  time.Time         `bson:"updated_at"`
}

func toTokenModel(t *accessgate.Token) *tokenModel {
	attrs := t.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &tokenModel{
		ID:         tokenKey(t.BookID, t.Owner),
		BookID:     t.BookID.String(),
		Owner:      t.Owner,
		AssetID:    t.AssetID,
		Attributes: attrs,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func fromTokenModel(m *tokenModel) (*accessgate.Token, error) {
	bookID, err := id.ParseBookID(m.BookID)
	if err != nil {
		return nil, err
	}
	return &accessgate.Token{
		BookID:     bookID,
		Owner:      m.Owner,
		AssetID:    m.AssetID,
		Attributes: m.Attributes,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}

func tokenKey(bookID id.BookID, owner string) string {
	return bookID.String() + "|" + owner
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
