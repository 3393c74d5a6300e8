package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingdrop/internal/airdrop"
	"github.com/Klingon-tech/klingdrop/internal/distribution"
)

// ── plan ────────────────────────────────────────────────────────────────

func (c *cli) cmdPlan(args []string) {
	const planUsage = "Usage: klingdrop-cli plan <init|add-token|add-nft|set-amount|remove|show> [flags]"
	if len(args) < 1 {
		fatal(planUsage)
	}

	switch args[0] {
	case "init":
		c.cmdPlanInit(args[1:])
	case "add-token":
		c.cmdPlanAddToken(args[1:])
	case "add-nft":
		c.cmdPlanAddNFT(args[1:])
	case "set-amount":
		c.cmdPlanSetAmount(args[1:])
	case "remove":
		c.cmdPlanRemove(args[1:])
	case "show":
		c.cmdPlanShow(args[1:])
	default:
		fatal("Unknown plan command: %s\n%s", args[0], planUsage)
	}
}

func (c *cli) cmdPlanInit(args []string) {
	fs := flag.NewFlagSet("plan init", flag.ExitOnError)
	planArg := fs.String("plan", "", "Plan name or path")
	recipientsFile := fs.String("recipients", "", "Recipient list (address[,id[,label]] per line)")
	overwrite := fs.Bool("overwrite", false, "Replace an existing plan")
	fs.Parse(args)

	if *planArg == "" || *recipientsFile == "" {
		fatal("Usage: klingdrop-cli plan init --plan <p> --recipients <file.csv>")
	}
	path := resolvePlanPath(c.plansDir, *planArg)
	if _, err := os.Stat(path); err == nil && !*overwrite {
		fatal("plan %s exists (use --overwrite)", path)
	}

	f, err := os.Open(*recipientsFile)
	if err != nil {
		fatal("open recipients: %v", err)
	}
	recipients, err := readRecipients(f)
	f.Close()
	if err != nil {
		fatal("%v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		fatal("create plan dir: %v", err)
	}
	pf := &airdrop.PlanFile{Recipients: recipients}
	if err := pf.Save(path); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Plan %s created with %d recipients.\n", path, len(recipients))
}

func (c *cli) cmdPlanAddToken(args []string) {
	fs := flag.NewFlagSet("plan add-token", flag.ExitOnError)
	planArg := fs.String("plan", "", "Plan name or path")
	id := fs.String("token", "", "Token id")
	typ := fs.String("type", string(distribution.Total), "total or per-user")
	amount := fs.String("amount", "", "Human-unit amount")
	fs.Parse(args)

	if *id == "" || *amount == "" {
		fatal("Usage: klingdrop-cli plan add-token --plan <p> --token <id> --type <total|per-user> --amount <a>")
	}
	path, pf := c.openPlan(*planArg, "plan add-token")
	inv := c.inventory()

	if err := addToken(pf, inv, *id, distribution.Type(*typ), *amount); err != nil {
		fatal("%v", err)
	}
	c.savePlan(path, pf)
	fmt.Printf("Added %s distribution of %s for token %s.\n", distribution.LabelFor(distribution.Type(*typ)), *amount, *id)
}

func (c *cli) cmdPlanAddNFT(args []string) {
	fs := flag.NewFlagSet("plan add-nft", flag.ExitOnError)
	planArg := fs.String("plan", "", "Plan name or path")
	id := fs.String("id", "", "Collection name or NFT token id")
	typ := fs.String("type", string(distribution.Random), "1-to-1, set or random")
	selectArg := fs.String("select", "", "Comma-separated collection members (default: all)")
	mapArg := fs.String("map", "", "Comma-separated nft=recipient pairs for 1-to-1")
	fs.Parse(args)

	if *id == "" {
		fatal("Usage: klingdrop-cli plan add-nft --plan <p> --id <collection|nft> --type <1-to-1|set|random>")
	}
	mapping, err := parseMapping(*mapArg)
	if err != nil {
		fatal("%v", err)
	}
	path, pf := c.openPlan(*planArg, "plan add-nft")
	inv := c.inventory()

	entry := airdrop.NFTEntry{
		ID:      *id,
		Type:    distribution.Type(*typ),
		Select:  splitList(*selectArg),
		Mapping: mapping,
	}
	if err := addNFT(pf, inv, entry); err != nil {
		fatal("%v", err)
	}
	c.savePlan(path, pf)
	fmt.Printf("Added %s distribution for %s.\n", distribution.LabelFor(entry.Type), *id)
}

func (c *cli) cmdPlanSetAmount(args []string) {
	fs := flag.NewFlagSet("plan set-amount", flag.ExitOnError)
	planArg := fs.String("plan", "", "Plan name or path")
	id := fs.String("id", "", "Entity id (token id, collection name or NFT id)")
	amount := fs.String("amount", "", "New amount")
	fs.Parse(args)

	if *id == "" || *amount == "" {
		fatal("Usage: klingdrop-cli plan set-amount --plan <p> --id <entity> --amount <a>")
	}
	path, pf := c.openPlan(*planArg, "plan set-amount")
	inv := c.inventory()

	updated, err := setAmount(pf, inv, *id, *amount)
	if err != nil {
		fatal("%v", err)
	}
	c.savePlan(path, updated)
	fmt.Printf("Amount for %s set to %s.\n", *id, *amount)
}

func (c *cli) cmdPlanRemove(args []string) {
	fs := flag.NewFlagSet("plan remove", flag.ExitOnError)
	planArg := fs.String("plan", "", "Plan name or path")
	id := fs.String("id", "", "Entity id")
	fs.Parse(args)

	if *id == "" {
		fatal("Usage: klingdrop-cli plan remove --plan <p> --id <entity>")
	}
	path, pf := c.openPlan(*planArg, "plan remove")
	if !removeEntry(pf, *id) {
		fatal("%s is not in the plan", *id)
	}
	c.savePlan(path, pf)
	fmt.Printf("Removed %s.\n", *id)
}

func (c *cli) cmdPlanShow(args []string) {
	fs := flag.NewFlagSet("plan show", flag.ExitOnError)
	planArg := fs.String("plan", "", "Plan name or path")
	fs.Parse(args)

	path, pf := c.openPlan(*planArg, "plan show")
	if c.jsonOut {
		printJSON(pf)
		return
	}

	fmt.Printf("Plan: %s\n", path)
	fmt.Printf("\nRecipients (%d):\n", len(pf.Recipients))
	for _, r := range pf.Recipients {
		if r.Label != "" {
			fmt.Printf("  %-10s %s  (%s)\n", r.ID, r.Address, r.Label)
		} else {
			fmt.Printf("  %-10s %s\n", r.ID, r.Address)
		}
	}
	fmt.Printf("\nTokens (%d):\n", len(pf.Tokens))
	for _, t := range pf.Tokens {
		fmt.Printf("  %s  %-9s %s\n", t.ID, t.Type, t.Amount)
	}
	fmt.Printf("\nNFTs (%d):\n", len(pf.NFTs))
	for _, n := range pf.NFTs {
		fmt.Printf("  %s  %s", n.ID, n.Type)
		if len(n.Select) > 0 {
			fmt.Printf("  selected=%d", len(n.Select))
		}
		if len(n.Mapping) > 0 {
			fmt.Printf("  mapped=%d", len(n.Mapping))
		}
		fmt.Println()
	}
}

// ── Plan file helpers ───────────────────────────────────────────────────

// loadPlan reads the plan named by arg or exits.
func (c *cli) loadPlan(arg, cmd string) *airdrop.PlanFile {
	_, pf := c.openPlan(arg, cmd)
	return pf
}

func (c *cli) openPlan(arg, cmd string) (string, *airdrop.PlanFile) {
	if arg == "" {
		fatal("Usage: klingdrop-cli %s --plan <name|path>", cmd)
	}
	path := resolvePlanPath(c.plansDir, arg)
	pf, err := airdrop.LoadPlan(path)
	if err != nil {
		fatal("%v", err)
	}
	return path, pf
}

func (c *cli) savePlan(path string, pf *airdrop.PlanFile) {
	if err := pf.Save(path); err != nil {
		fatal("%v", err)
	}
}

// inventory fetches the connected wallet's holdings from the daemon.
func (c *cli) inventory() airdrop.Inventory {
	snap, err := c.client.Holdings(c.ctx, false)
	if err != nil {
		fatal("wallet_holdings: %v", err)
	}
	return snap.Inventory()
}

// resolvePlanPath maps a bare plan name to <plansDir>/<name>.yaml.
func resolvePlanPath(plansDir, arg string) string {
	if strings.ContainsRune(arg, os.PathSeparator) || strings.ContainsRune(arg, '/') || filepath.Ext(arg) != "" {
		return arg
	}
	return filepath.Join(plansDir, arg+".yaml")
}

// readRecipients parses "address[,id[,label]]" lines. Blank lines and
// lines starting with # are ignored; missing ids become r1, r2, ...
func readRecipients(r io.Reader) ([]airdrop.Recipient, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []airdrop.Recipient
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read recipients: %w", err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) > 3 {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("read recipients: line %d has %d fields, want at most 3", line, len(rec))
		}
		rcp := airdrop.Recipient{Address: strings.TrimSpace(rec[0])}
		if len(rec) > 1 {
			rcp.ID = strings.TrimSpace(rec[1])
		}
		if rcp.ID == "" {
			rcp.ID = "r" + strconv.Itoa(len(out)+1)
		}
		if len(rec) > 2 {
			rcp.Label = strings.TrimSpace(rec[2])
		}
		out = append(out, rcp)
	}
	if len(out) == 0 {
		return nil, errors.New("read recipients: no recipients")
	}
	return out, nil
}

// addToken appends a token distribution and checks the plan still
// resolves against inv. On failure pf is left unchanged.
func addToken(pf *airdrop.PlanFile, inv airdrop.Inventory, id string, typ distribution.Type, amount string) error {
	pf.Tokens = append(pf.Tokens, airdrop.TokenEntry{ID: id, Type: typ, Amount: amount})
	if _, err := pf.Resolve(inv); err != nil {
		pf.Tokens = pf.Tokens[:len(pf.Tokens)-1]
		return err
	}
	return nil
}

// addNFT appends an NFT or collection distribution with the same
// all-or-nothing rule as addToken.
func addNFT(pf *airdrop.PlanFile, inv airdrop.Inventory, entry airdrop.NFTEntry) error {
	pf.NFTs = append(pf.NFTs, entry)
	if _, err := pf.Resolve(inv); err != nil {
		pf.NFTs = pf.NFTs[:len(pf.NFTs)-1]
		return err
	}
	return nil
}

// setAmount changes the amount of the token distribution keyed by id
// and returns the rewritten plan.
func setAmount(pf *airdrop.PlanFile, inv airdrop.Inventory, id, amount string) (*airdrop.PlanFile, error) {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", airdrop.ErrInvalidPlan, amount)
	}
	if amt.IsNegative() {
		return nil, distribution.ErrNegativeAmount
	}
	cfg, err := pf.Resolve(inv)
	if err != nil {
		return nil, err
	}

	tokens, err := distribution.UpdateAmount(cfg.Tokens, id, amt)
	if errors.Is(err, distribution.ErrRecordNotFound) {
		if _, nftErr := distribution.UpdateAmount(cfg.NFTs, id, amt); nftErr == nil {
			return nil, fmt.Errorf("%s: NFT distributions always send one unit per output", id)
		}
	}
	if err != nil {
		return nil, err
	}
	cfg.Tokens = tokens
	return airdrop.PlanFromConfig(cfg), nil
}

// removeEntry drops every distribution of id. It reports whether one
// was found.
func removeEntry(pf *airdrop.PlanFile, id string) bool {
	found := false
	tokens := pf.Tokens[:0]
	for _, t := range pf.Tokens {
		if t.ID == id {
			found = true
			continue
		}
		tokens = append(tokens, t)
	}
	pf.Tokens = tokens

	nfts := pf.NFTs[:0]
	for _, n := range pf.NFTs {
		if n.ID == id {
			found = true
			continue
		}
		nfts = append(nfts, n)
	}
	pf.NFTs = nfts
	return found
}

// parseMapping reads "nft=recipient,nft=recipient".
func parseMapping(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range splitList(s) {
		nft, rcp, ok := strings.Cut(pair, "=")
		nft, rcp = strings.TrimSpace(nft), strings.TrimSpace(rcp)
		if !ok || nft == "" || rcp == "" {
			return nil, fmt.Errorf("bad mapping %q, want nft=recipient", pair)
		}
		out[nft] = rcp
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
