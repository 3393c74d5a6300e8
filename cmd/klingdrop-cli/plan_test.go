package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Klingon-tech/klingdrop/internal/airdrop"
	"github.com/Klingon-tech/klingdrop/internal/collection"
	"github.com/Klingon-tech/klingdrop/internal/distribution"
	"github.com/Klingon-tech/klingdrop/internal/token"
)

const (
	testToken = "1111111111111111111111111111111111111111111111111111111111111111"
	testNFT   = "2222222222222222222222222222222222222222222222222222222222222222"
)

func testInventory() airdrop.Inventory {
	return airdrop.Inventory{
		Holdings: []token.Holding{
			{TokenID: testToken, Name: "Test", Amount: 10_000, Decimals: 2},
			{TokenID: testNFT, Name: "Lone", Amount: 1},
		},
		Discovered: &collection.Result{
			Collections: []token.Collection{{
				ID: "Cats", Name: "Cats",
				NFTs: []token.NFT{{ID: "cat-a", CollectionID: "Cats"}, {ID: "cat-b", CollectionID: "Cats"}},
			}},
			StandaloneNFTs: []token.NFT{{ID: testNFT, Name: "Lone"}},
		},
	}
}

func testPlan() *airdrop.PlanFile {
	return &airdrop.PlanFile{Recipients: []airdrop.Recipient{
		{ID: "r1", Address: "9fRAWhdxEsTcdb8PhGNrZfwqa65zfkuYHAMmkQLcic1gdLSV5vA"},
		{ID: "r2", Address: "9hY16vzHmmfyVBwKeFGHvb2bMFsG94A1u7To1QWtUokACyFVENQ"},
	}}
}

func TestReadRecipients(t *testing.T) {
	input := `# airdrop list
9fRAWhdxEsTcdb8PhGNrZfwqa65zfkuYHAMmkQLcic1gdLSV5vA
9hY16vzHmmfyVBwKeFGHvb2bMFsG94A1u7To1QWtUokACyFVENQ, bob, Bob B

9fRAWhdxEsTcdb8PhGNrZfwqa65zfkuYHAMmkQLcic1gdLSV5vA,,dup
`
	got, err := readRecipients(strings.NewReader(input))
	if err != nil {
		t.Fatalf("readRecipients() error: %v", err)
	}
	want := []airdrop.Recipient{
		{ID: "r1", Address: "9fRAWhdxEsTcdb8PhGNrZfwqa65zfkuYHAMmkQLcic1gdLSV5vA"},
		{ID: "bob", Address: "9hY16vzHmmfyVBwKeFGHvb2bMFsG94A1u7To1QWtUokACyFVENQ", Label: "Bob B"},
		{ID: "r3", Address: "9fRAWhdxEsTcdb8PhGNrZfwqa65zfkuYHAMmkQLcic1gdLSV5vA", Label: "dup"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d recipients, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipient %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadRecipients_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"only comments", "# nothing\n"},
		{"too many fields", "addr,id,label,extra\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readRecipients(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolvePlanPath(t *testing.T) {
	dir := filepath.Join("data", "plans")
	tests := []struct {
		arg  string
		want string
	}{
		{"spring", filepath.Join(dir, "spring.yaml")},
		{"spring.yml", "spring.yml"},
		{"./spring", "./spring"},
		{"/tmp/p.yaml", "/tmp/p.yaml"},
	}
	for _, tt := range tests {
		if got := resolvePlanPath(dir, tt.arg); got != tt.want {
			t.Errorf("resolvePlanPath(%q) = %q, want %q", tt.arg, got, tt.want)
		}
	}
}

func TestAddToken(t *testing.T) {
	pf := testPlan()
	inv := testInventory()

	if err := addToken(pf, inv, testToken, distribution.Total, "12.5"); err != nil {
		t.Fatalf("addToken() error: %v", err)
	}
	if len(pf.Tokens) != 1 {
		t.Fatalf("tokens = %+v", pf.Tokens)
	}

	tests := []struct {
		name    string
		id      string
		typ     distribution.Type
		amount  string
		wantErr error
	}{
		{"duplicate", testToken, distribution.PerUser, "1", distribution.ErrDuplicateEntity},
		{"not held", strings.Repeat("9", 64), distribution.Total, "1", airdrop.ErrUnknownEntity},
		{"nft type", testToken, distribution.Random, "1", distribution.ErrTypeMismatch},
		{"bad amount", testToken, distribution.Total, "many", airdrop.ErrInvalidPlan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := addToken(pf, inv, tt.id, tt.typ, tt.amount); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if len(pf.Tokens) != 1 {
				t.Errorf("failed add changed the plan: %+v", pf.Tokens)
			}
		})
	}
}

func TestAddNFT(t *testing.T) {
	pf := testPlan()
	inv := testInventory()

	if err := addNFT(pf, inv, airdrop.NFTEntry{ID: "Cats", Type: distribution.Random, Select: []string{"cat-b"}}); err != nil {
		t.Fatalf("addNFT(collection) error: %v", err)
	}
	entry := airdrop.NFTEntry{ID: testNFT, Type: distribution.OneToOne, Mapping: map[string]string{testNFT: "r2"}}
	if err := addNFT(pf, inv, entry); err != nil {
		t.Fatalf("addNFT(nft) error: %v", err)
	}
	if err := addNFT(pf, inv, airdrop.NFTEntry{ID: "Dogs", Type: distribution.Set}); !errors.Is(err, airdrop.ErrUnknownEntity) {
		t.Errorf("unknown collection: err = %v", err)
	}
	if err := addNFT(pf, inv, airdrop.NFTEntry{ID: "Cats", Type: distribution.Set, Select: []string{"cat-z"}}); err == nil {
		t.Error("unknown member should fail")
	}
	if len(pf.NFTs) != 2 {
		t.Errorf("nfts = %+v, want 2 entries", pf.NFTs)
	}
}

func TestSetAmount(t *testing.T) {
	pf := testPlan()
	inv := testInventory()
	if err := addToken(pf, inv, testToken, distribution.Total, "10"); err != nil {
		t.Fatal(err)
	}
	if err := addNFT(pf, inv, airdrop.NFTEntry{ID: "Cats", Type: distribution.Set}); err != nil {
		t.Fatal(err)
	}

	updated, err := setAmount(pf, inv, testToken, "25.5")
	if err != nil {
		t.Fatalf("setAmount() error: %v", err)
	}
	if updated.Tokens[0].Amount != "25.5" || updated.Tokens[0].Type != distribution.Total {
		t.Errorf("token entry = %+v", updated.Tokens[0])
	}
	if pf.Tokens[0].Amount != "10" {
		t.Error("setAmount must not modify its input")
	}
	if len(updated.NFTs) != 1 || len(updated.Recipients) != 2 {
		t.Errorf("other entries lost: %+v", updated)
	}

	if _, err := setAmount(pf, inv, "Cats", "2"); err == nil {
		t.Error("NFT amount change should be refused")
	}
	if _, err := setAmount(pf, inv, "nope", "2"); !errors.Is(err, distribution.ErrRecordNotFound) {
		t.Errorf("missing entity: err = %v", err)
	}
	if _, err := setAmount(pf, inv, testToken, "x"); !errors.Is(err, airdrop.ErrInvalidPlan) {
		t.Errorf("bad amount: err = %v", err)
	}
	if _, err := setAmount(pf, inv, testToken, "-1"); !errors.Is(err, distribution.ErrNegativeAmount) {
		t.Errorf("negative amount: err = %v", err)
	}
}

func TestRemoveEntry(t *testing.T) {
	pf := testPlan()
	pf.Tokens = []airdrop.TokenEntry{{ID: testToken, Type: distribution.Total, Amount: "1"}}
	pf.NFTs = []airdrop.NFTEntry{{ID: "Cats", Type: distribution.Set}}

	if removeEntry(pf, "missing") {
		t.Error("removeEntry reported a missing entity")
	}
	if !removeEntry(pf, "Cats") || len(pf.NFTs) != 0 || len(pf.Tokens) != 1 {
		t.Errorf("after removing Cats: %+v", pf)
	}
	if !removeEntry(pf, testToken) || len(pf.Tokens) != 0 {
		t.Errorf("after removing token: %+v", pf)
	}
}

func TestParseMapping(t *testing.T) {
	got, err := parseMapping(" a=r1, b = r2 ,")
	if err != nil {
		t.Fatalf("parseMapping() error: %v", err)
	}
	if len(got) != 2 || got["a"] != "r1" || got["b"] != "r2" {
		t.Errorf("mapping = %v", got)
	}
	if m, err := parseMapping(""); err != nil || m != nil {
		t.Errorf("empty: %v, %v", m, err)
	}
	for _, bad := range []string{"a", "=r1", "a="} {
		if _, err := parseMapping(bad); err == nil {
			t.Errorf("parseMapping(%q) should fail", bad)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		raw      uint64
		decimals int
		want     string
	}{
		{1_100_000, 9, "0.0011"},
		{1_000_000_000, 9, "1"},
		{12345, 2, "123.45"},
		{7, 0, "7"},
	}
	for _, tt := range tests {
		if got := formatUnits(tt.raw, tt.decimals); got != tt.want {
			t.Errorf("formatUnits(%d, %d) = %q, want %q", tt.raw, tt.decimals, got, tt.want)
		}
	}
}
