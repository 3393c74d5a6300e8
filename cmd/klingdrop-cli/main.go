// klingdrop-cli is a command-line client for a running klingdropd daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
)

// cli carries the resolved global settings for a subcommand.
type cli struct {
	ctx      context.Context
	client   *rpcclient.Client
	cfg      *config.Config
	jsonOut  bool
	rpcURL   string
	plansDir string
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := ""
	dataDir := ""
	network := ""
	jsonOut := false

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--testnet":
			network = string(config.Testnet)
			args = args[1:]
		case args[0] == "--json":
			jsonOut = true
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(network, dataDir)
	if err != nil {
		fatal("%v", err)
	}
	if rpcURL == "" {
		rpcURL = "http://" + cfg.RPCListenAddr() + "/"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{
		ctx:      ctx,
		client:   rpcclient.New(rpcURL),
		cfg:      cfg,
		jsonOut:  jsonOut,
		rpcURL:   rpcURL,
		plansDir: cfg.PlansDir(),
	}
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		c.cmdStatus()
	case "wallet":
		c.cmdWallet(cmdArgs)
	case "holdings":
		c.cmdHoldings(cmdArgs)
	case "plan":
		c.cmdPlan(cmdArgs)
	case "preview":
		c.cmdPreview(cmdArgs)
	case "send":
		c.cmdSend(cmdArgs)
	case "history":
		c.cmdHistory(cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: klingdrop-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         Daemon RPC endpoint (default: from config, http://127.0.0.1:9545/)
  --datadir <path>    Data directory (default: ~/.klingdrop)
  --network <net>     mainnet (default) or testnet
  --testnet           Shorthand for --network=testnet
  --json              Print results as JSON

Commands:
  status                          Show daemon wallet status

  wallet create --name <n>        Create a new wallet
  wallet import --name <n> [--mnemonic "..."]
                                  Import wallet from mnemonic
  wallet list                     List wallets
  wallet connect [--name <n>]     Unlock a wallet in the daemon
  wallet disconnect               Lock the connected wallet

  holdings [--refresh]            Show tokens, collections and NFTs

  plan init --plan <p> --recipients <file.csv>
                                  Start a plan from a recipient list
  plan add-token --plan <p> --token <id> --type <total|per-user> --amount <a>
                                  Distribute a token
  plan add-nft --plan <p> --id <collection|nft> --type <1-to-1|set|random>
               [--select <id,...>] [--map <nft=recipient,...>]
                                  Distribute NFTs
  plan set-amount --plan <p> --id <entity> --amount <a>
                                  Change the amount of a distribution
  plan remove --plan <p> --id <entity>
                                  Drop a distribution
  plan show --plan <p>            Print a plan

  preview --plan <p>              Assemble a plan without signing
  send --plan <p> [--force] [--yes]
                                  Sign and submit a plan
  history [--limit <n>] [--digest <d>]
                                  Show sent airdrops

A plan name without a path or extension refers to <datadir>/<network>/plans/<name>.yaml.
Recipient files hold one "address[,id[,label]]" per line.
`)
}

// loadConfig applies defaults, the config file and KLINGDROP_* env so the
// CLI finds the daemon where the daemon was told to listen.
func loadConfig(network, dataDir string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	env := config.EnvValues(os.Environ())
	if network == "" {
		network = env["network"]
	}
	if network == "" {
		network = string(config.Mainnet)
	}
	cfg := config.Default(config.NetworkType(network))
	cfg.Network = config.NetworkType(network)
	if dataDir == "" {
		dataDir = env["datadir"]
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	values, err := config.LoadFile(cfg.ConfigFile())
	if err != nil {
		return nil, err
	}
	if err := config.ApplyFileConfig(cfg, values); err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Network = config.NetworkType(network)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// ── status ──────────────────────────────────────────────────────────────

func (c *cli) cmdStatus() {
	status, err := c.client.WalletStatus(c.ctx)
	if err != nil {
		fatal("wallet_status: %v", err)
	}
	if c.jsonOut {
		printJSON(status)
		return
	}

	fmt.Printf("Daemon:     %s\n", c.rpcURL)
	fmt.Printf("Network:    %s\n", c.cfg.Network)
	if !status.Connected {
		fmt.Println("Wallet:     not connected")
		return
	}
	fmt.Printf("Wallet:     %s\n", status.Name)
	fmt.Printf("Balance:    %s ERG\n", formatERG(status.Balance))
	fmt.Printf("Boxes:      %d\n", status.Boxes)
	for _, a := range status.Accounts {
		fmt.Printf("Address %d:  %s\n", a.Index, a.Address)
	}
	if !status.RefreshedAt.IsZero() {
		fmt.Printf("Refreshed:  %s\n", status.RefreshedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

// ── wallet ──────────────────────────────────────────────────────────────

func (c *cli) cmdWallet(args []string) {
	if len(args) < 1 {
		fatal("Usage: klingdrop-cli wallet <create|import|list|connect|disconnect> [flags]")
	}

	switch args[0] {
	case "create":
		c.cmdWalletCreate(args[1:])
	case "import":
		c.cmdWalletImport(args[1:])
	case "list":
		c.cmdWalletList()
	case "connect":
		c.cmdWalletConnect(args[1:])
	case "disconnect":
		if err := c.client.WalletDisconnect(c.ctx); err != nil {
			fatal("wallet_disconnect: %v", err)
		}
		fmt.Println("Wallet disconnected.")
	default:
		fatal("Unknown wallet command: %s\nUsage: klingdrop-cli wallet <create|import|list|connect|disconnect> [flags]", args[0])
	}
}

func (c *cli) cmdWalletCreate(args []string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: klingdrop-cli wallet create --name <name>")
	}
	password := readNewPassword()

	res, err := c.client.WalletCreate(c.ctx, *name, string(password))
	if err != nil {
		fatal("wallet_create: %v", err)
	}

	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", res.Mnemonic)
	fmt.Printf("Wallet %q created.\n", res.Name)
	fmt.Printf("Address: %s\n", res.Address)
}

func (c *cli) cmdWalletImport(args []string) {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic (prompted if omitted)")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: klingdrop-cli wallet import --name <name> [--mnemonic \"...\"]")
	}
	if *mnemonic == "" {
		words, err := readPassword("Enter mnemonic: ")
		if err != nil {
			fatal("read mnemonic: %v", err)
		}
		*mnemonic = string(words)
	}
	password := readNewPassword()

	res, err := c.client.WalletImport(c.ctx, *name, string(password), *mnemonic)
	if err != nil {
		fatal("wallet_import: %v", err)
	}
	fmt.Printf("Wallet %q imported.\n", res.Name)
	fmt.Printf("Address: %s\n", res.Address)
}

func (c *cli) cmdWalletList() {
	wallets, err := c.client.WalletList(c.ctx)
	if err != nil {
		fatal("wallet_list: %v", err)
	}
	if c.jsonOut {
		printJSON(wallets)
		return
	}
	if len(wallets) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, w := range wallets {
		fmt.Printf("%-20s %-8s addresses=%d created=%s\n",
			w.Name, w.Network, w.Addresses, w.CreatedAt.Local().Format("2006-01-02"))
	}
}

func (c *cli) cmdWalletConnect(args []string) {
	fs := flag.NewFlagSet("wallet connect", flag.ExitOnError)
	name := fs.String("name", c.cfg.Wallet.Name, "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: klingdrop-cli wallet connect --name <name> (or set wallet.name in the config)")
	}
	password, err := readPassword("Password: ")
	if err != nil {
		fatal("read password: %v", err)
	}

	status, err := c.client.WalletConnect(c.ctx, *name, string(password))
	if err != nil {
		fatal("wallet_connect: %v", err)
	}
	fmt.Printf("Connected %q: %s ERG in %d boxes.\n", status.Name, formatERG(status.Balance), status.Boxes)
}

// ── holdings ────────────────────────────────────────────────────────────

func (c *cli) cmdHoldings(args []string) {
	fs := flag.NewFlagSet("holdings", flag.ExitOnError)
	refresh := fs.Bool("refresh", false, "Re-read the wallet before listing")
	fs.Parse(args)

	snap, err := c.client.Holdings(c.ctx, *refresh)
	if err != nil {
		fatal("wallet_holdings: %v", err)
	}
	if c.jsonOut {
		printJSON(snap)
		return
	}

	fmt.Printf("Balance: %s ERG in %d boxes\n", formatERG(snap.Balance), snap.Boxes)

	fmt.Printf("\nTokens (%d):\n", len(snap.Tokens))
	for _, t := range snap.Tokens {
		fmt.Printf("  %s  %-20s %s\n", t.ID, t.Name, formatUnits(t.Amount, t.Decimals))
	}

	fmt.Printf("\nCollections (%d):\n", len(snap.Collections))
	for _, col := range snap.Collections {
		fmt.Printf("  %s (%d NFTs)\n", col.Name, len(col.NFTs))
		for _, n := range col.NFTs {
			fmt.Printf("    %s  %s\n", n.ID, n.Name)
		}
	}

	fmt.Printf("\nOther NFTs (%d):\n", len(snap.StandaloneNFTs))
	for _, n := range snap.StandaloneNFTs {
		fmt.Printf("  %s  %s\n", n.ID, n.Name)
	}
}

// ── preview / send ──────────────────────────────────────────────────────

func (c *cli) cmdPreview(args []string) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	planArg := fs.String("plan", "", "Plan name or path")
	fs.Parse(args)

	pf := c.loadPlan(*planArg, "preview")
	res, err := c.client.Preview(c.ctx, pf)
	if err != nil {
		fatal("airdrop_preview: %v", err)
	}
	if c.jsonOut {
		printJSON(res)
		return
	}

	s := res.Summary
	fmt.Printf("Digest:       %s\n", res.Digest)
	fmt.Printf("Tx ID:        %s\n", res.TxID)
	fmt.Printf("Size:         %d bytes\n", res.Size)
	fmt.Printf("Recipients:   %d\n", s.Recipients)
	fmt.Printf("Inputs:       %d\n", s.Inputs)
	fmt.Printf("Outputs:      %d (%d token, %d NFT)\n", s.Outputs, s.TokenOutputs, s.NFTOutputs)
	fmt.Printf("Fee:          %s ERG", formatERG(s.Fee))
	if res.Rebuilt {
		fmt.Print(" (raised to recommended)")
	}
	fmt.Println()
	for _, sk := range res.Skipped {
		if sk.Recipient != "" {
			fmt.Printf("Skipped:      %s -> %s: %s\n", sk.Entity, sk.Recipient, sk.Reason)
		} else {
			fmt.Printf("Skipped:      %s: %s\n", sk.Entity, sk.Reason)
		}
	}
	for _, e := range res.PreviouslySent {
		fmt.Printf("Already sent: tx %s on %s\n", e.TxID, e.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}

func (c *cli) cmdSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	planArg := fs.String("plan", "", "Plan name or path")
	force := fs.Bool("force", false, "Send even if this plan was sent before")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	fs.Parse(args)

	pf := c.loadPlan(*planArg, "send")

	if !*yes {
		preview, err := c.client.Preview(c.ctx, pf)
		if err != nil {
			fatal("airdrop_preview: %v", err)
		}
		fmt.Printf("Sending %d outputs to %d recipients, fee %s ERG.\n",
			preview.Summary.Outputs, preview.Summary.Recipients, formatERG(preview.Summary.Fee))
		if len(preview.Skipped) > 0 {
			fmt.Printf("%d outputs will be skipped (see preview).\n", len(preview.Skipped))
		}
		if len(preview.PreviouslySent) > 0 && !*force {
			fatal("plan already sent in tx %s (use --force to resend)", preview.PreviouslySent[0].TxID)
		}
		if !confirm("Proceed? [y/N] ") {
			fmt.Println("Aborted.")
			return
		}
	}

	receipt, err := c.client.Send(c.ctx, pf, *force)
	if prior, dup := rpcclient.Duplicates(err); dup {
		for _, e := range prior {
			fmt.Fprintf(os.Stderr, "Previously sent: tx %s on %s\n", e.TxID, e.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		fatal("plan already sent (use --force to resend)")
	}
	if err != nil {
		fatal("airdrop_send: %v", err)
	}
	if c.jsonOut {
		printJSON(receipt)
		return
	}
	fmt.Printf("Submitted: %s\n", receipt.TxID)
	fmt.Printf("Outputs:   %d, fee %s ERG\n", receipt.Summary.Outputs, formatERG(receipt.Summary.Fee))
}

// ── history ─────────────────────────────────────────────────────────────

func (c *cli) cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum entries")
	digest := fs.String("digest", "", "Only entries for this plan digest")
	fs.Parse(args)

	entries, err := c.client.History(c.ctx, *limit, *digest)
	if err != nil {
		fatal("airdrop_history: %v", err)
	}
	if c.jsonOut {
		printJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No airdrops sent.")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  outputs=%d recipients=%d fee=%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"), e.TxID,
			e.Summary.Outputs, e.Summary.Recipients, formatERG(e.Summary.Fee))
	}
}

// ── Formatting helpers ──────────────────────────────────────────────────

// formatERG converts nanoERG to a decimal ERG string.
func formatERG(nano uint64) string {
	return formatUnits(nano, 9)
}

// formatUnits scales a raw amount by decimals.
func formatUnits(raw uint64, decimals int) string {
	return decimal.NewFromUint64(raw).Shift(int32(-decimals)).String()
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode json: %v", err)
	}
	fmt.Println(string(data))
}

// ── Prompt helpers ──────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func readNewPassword() []byte {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	again, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(again) {
		fatal("passwords do not match")
	}
	return password
}

func confirm(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	var answer string
	fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
