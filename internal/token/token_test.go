package token

import "testing"

func TestEntityTags(t *testing.T) {
	tests := []struct {
		e        Entity
		id, kind string
	}{
		{&Token{ID: "t1"}, "t1", TypeToken},
		{&NFT{ID: "n1"}, "n1", TypeNFT},
		{&Collection{ID: "Spooky", Name: "Spooky"}, "Spooky", TypeCollection},
	}
	for _, tt := range tests {
		if tt.e.EntityID() != tt.id || tt.e.EntityType() != tt.kind {
			t.Errorf("%T: got (%s, %s), want (%s, %s)", tt.e, tt.e.EntityID(), tt.e.EntityType(), tt.id, tt.kind)
		}
	}
}

func TestToken_HumanAmount(t *testing.T) {
	tok := &Token{Amount: 12345, Decimals: 2}
	if got := tok.HumanAmount().String(); got != "123.45" {
		t.Errorf("HumanAmount() = %s, want 123.45", got)
	}
	tok = &Token{Amount: 1 << 63, Decimals: 0}
	if got := tok.HumanAmount().String(); got != "9223372036854775808" {
		t.Errorf("HumanAmount() = %s", got)
	}
}

func TestCollection_SelectedNFTs(t *testing.T) {
	c := &Collection{ID: "C", Name: "C", NFTs: []NFT{{ID: "a"}, {ID: "b"}, {ID: "c"}}}

	if got := c.SelectedNFTs(); len(got) != 3 {
		t.Errorf("nothing selected should yield all members, got %d", len(got))
	}
	if n := c.Select("c", "a", "zzz"); n != 2 {
		t.Errorf("Select matched %d, want 2", n)
	}
	got := c.SelectedNFTs()
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("SelectedNFTs() = %v, want [a c] in collection order", got)
	}
	c.Select()
	if got := c.SelectedNFTs(); len(got) != 3 {
		t.Errorf("cleared selection should yield all members, got %d", len(got))
	}
}
