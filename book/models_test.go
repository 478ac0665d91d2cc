package book

import "testing"

func sample() *Book {
	return &Book{
		Author:  "author",
		Readers: []string{"full"},
		Chapters: []Chapter{
			{Index: 3, Price: 30, Readers: []string{"full", "r1"}},
			{Index: 0, Price: 40, Readers: []string{"full"}},
		},
		Stakes:     []Stake{{Staker: "s1", Amount: 5}, {Staker: "s2", Amount: 7}},
		TotalStake: 12,
	}
}

func TestLookups(t *testing.T) {
	b := sample()

	if ch, ok := b.Chapter(3); !ok || ch.Price != 30 {
		t.Fatalf("Chapter(3) = %+v, %v", ch, ok)
	}
	if _, ok := b.Chapter(1); ok {
		t.Error("Chapter(1) should not exist")
	}
	if st, ok := b.Stake("s2"); !ok || st.Amount != 7 {
		t.Fatalf("Stake(s2) = %+v, %v", st, ok)
	}
	if _, ok := b.Stake("nobody"); ok {
		t.Error("unexpected stake for nobody")
	}
	if !b.HasReader("full") || b.HasReader("r1") {
		t.Error("HasReader mismatch")
	}
	if !b.OwnsEveryChapter("full") || b.OwnsEveryChapter("r1") {
		t.Error("OwnsEveryChapter mismatch")
	}
	if (&Book{}).OwnsEveryChapter("x") {
		t.Error("empty book should not be owned")
	}
	if b.ChapterPriceSum() != 70 {
		t.Errorf("ChapterPriceSum = %d", b.ChapterPriceSum())
	}
	if b.StakeSum() != b.TotalStake {
		t.Errorf("StakeSum = %d, TotalStake = %d", b.StakeSum(), b.TotalStake)
	}
}

func TestChapterPointerMutatesBook(t *testing.T) {
	b := sample()
	ch, _ := b.Chapter(0)
	ch.Readers = append(ch.Readers, "r2")
	if !b.Chapters[1].HasReader("r2") {
		t.Error("mutation through Chapter() did not reach the book")
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := sample()
	c := b.Clone()

	c.Readers[0] = "changed"
	c.Chapters[0].Readers[0] = "changed"
	c.Stakes[0].Earnings = 99
	c.Chapters = append(c.Chapters, Chapter{Index: 9})

	if b.Readers[0] != "full" {
		t.Error("clone shares Readers")
	}
	if b.Chapters[0].Readers[0] != "full" {
		t.Error("clone shares chapter readers")
	}
	if b.Stakes[0].Earnings != 0 {
		t.Error("clone shares Stakes")
	}
	if len(b.Chapters) != 2 {
		t.Error("clone shares Chapters backing array")
	}
}

func TestListOpts(t *testing.T) {
	b := sample()
	b.Genre = "fantasy"

	tests := []struct {
		name string
		opts ListOpts
		want bool
	}{
		{"empty", ListOpts{}, true},
		{"author", ListOpts{Author: "author"}, true},
		{"other author", ListOpts{Author: "x"}, false},
		{"genre", ListOpts{Genre: "fantasy"}, true},
		{"min stakers met", ListOpts{MinStakers: 2}, true},
		{"min stakers unmet", ListOpts{MinStakers: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Match(b); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	tests := []struct {
		offset, limit int
		want          []int
	}{
		{0, 0, []int{1, 2, 3, 4, 5}},
		{1, 2, []int{2, 3}},
		{4, 10, []int{5}},
		{9, 1, []int{}},
	}
	for _, tt := range tests {
		got := Page(items, tt.offset, tt.limit)
		if len(got) != len(tt.want) {
			t.Fatalf("Page(%d, %d) = %v, want %v", tt.offset, tt.limit, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("Page(%d, %d) = %v, want %v", tt.offset, tt.limit, got, tt.want)
			}
		}
	}
}
