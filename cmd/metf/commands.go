package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/metf/pkg/client"
	"github.com/fortiblox/metf/pkg/metrics"
	"github.com/fortiblox/metf/pkg/snapshot"
	"github.com/fortiblox/metf/pkg/svm/programs/persontoken"
	"github.com/fortiblox/metf/pkg/svm/programs/token"
	"github.com/fortiblox/metf/pkg/types"
)

var errUsage = errors.New("invalid arguments")

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", "", "Keypair file to write")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("%w: -out is required", errUsage)
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", *out)
	}

	key, err := client.NewKeypair()
	if err != nil {
		return err
	}
	if err := client.SaveKeypair(*out, key); err != nil {
		return err
	}
	fmt.Println(key.PublicKey())
	return nil
}

// parseAddress accepts a base58 public key or a keypair file.
func parseAddress(s string) (types.Pubkey, error) {
	if pk, err := types.PubkeyFromBase58(s); err == nil {
		return pk, nil
	}
	key, err := client.LoadKeypair(s)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("%q is neither a public key nor a keypair file", s)
	}
	return client.LedgerPubkey(key.PublicKey()), nil
}

func runAirdrop(args []string) error {
	fs := flag.NewFlagSet("airdrop", flag.ContinueOnError)
	to := fs.String("to", "", "Recipient public key or keypair file")
	lamports := fs.Uint64("lamports", *airdropLamports, "Lamports to credit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *to == "" {
		return fmt.Errorf("%w: -to is required", errUsage)
	}
	recipient, err := parseAddress(*to)
	if err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.bank.Airdrop(recipient, types.Lamports(*lamports)); err != nil {
		return err
	}
	balance, err := l.bank.GetBalance(recipient)
	if err != nil {
		return err
	}
	log.Printf("Airdropped %d lamports to %s", *lamports, recipient)
	fmt.Printf("%s %.9f SOL\n", recipient, balance.SOL())
	return nil
}

func runInitPersonToken(args []string) error {
	fs := flag.NewFlagSet("init-person-token", flag.ContinueOnError)
	keypairPath := fs.String("keypair", "", "Signer keypair file")
	mintPath := fs.String("mint", "", "Mint keypair file (generated when missing)")
	name := fs.String("name", "", "Token name")
	symbol := fs.String("symbol", "", "Token symbol")
	uri := fs.String("uri", "", "Metadata URI")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keypairPath == "" {
		return fmt.Errorf("%w: -keypair is required", errUsage)
	}

	signer, err := client.LoadKeypair(*keypairPath)
	if err != nil {
		return err
	}
	mint, err := loadOrCreateMint(*mintPath)
	if err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	signerKey := client.LedgerPubkey(signer.PublicKey())
	if *dataDir == "" {
		// A fresh in-memory ledger has no funded wallets.
		if err := l.bank.Airdrop(signerKey, types.Lamports(*airdropLamports)); err != nil {
			return err
		}
	}

	tx, err := client.BuildInitPersonToken(signer, mint,
		client.InitPersonTokenArgs{Name: *name, Symbol: *symbol, URI: *uri},
		client.Blockhash(l.bank.LatestBlockhash()),
		client.Options{ComputeUnitLimit: uint32(*computeUnits)})
	if err != nil {
		return err
	}
	ledgerTx, err := client.ToLedger(tx)
	if err != nil {
		return err
	}

	result, err := l.bank.ProcessTransaction(ledgerTx)
	if err != nil {
		return err
	}
	for _, line := range result.Logs {
		debugf("  %s", line)
	}
	if !result.Success {
		return fmt.Errorf("transaction %s failed: %w", result.Signature, result.Error)
	}

	person, _, err := persontoken.DerivePersonAddress(signerKey)
	if err != nil {
		return err
	}
	vault, _, err := persontoken.DeriveVaultAddress(person, client.LedgerPubkey(mint.PublicKey()))
	if err != nil {
		return err
	}
	log.Printf("Issued person token in slot %d (%d compute units)", l.bank.Slot(), result.ComputeUnits)
	fmt.Printf("Signature: %s\n", result.Signature)
	fmt.Printf("Person:    %s\n", person)
	fmt.Printf("Mint:      %s\n", mint.PublicKey())
	fmt.Printf("Vault:     %s\n", vault)
	return nil
}

func loadOrCreateMint(path string) (solana.PrivateKey, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return client.LoadKeypair(path)
		}
	}
	key, err := client.NewKeypair()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := client.SaveKeypair(path, key); err != nil {
			return nil, err
		}
		debugf("Wrote mint keypair to %s", path)
	}
	return key, nil
}

func runInspect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: inspect <pubkey>", errUsage)
	}
	pubkey, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	acc, err := l.bank.GetAccount(pubkey)
	if err != nil {
		return err
	}
	if acc == nil {
		fmt.Printf("%s: account not found\n", pubkey)
		return nil
	}

	fmt.Printf("Address:    %s\n", pubkey)
	fmt.Printf("Owner:      %s\n", acc.Owner)
	fmt.Printf("Lamports:   %d (%.9f SOL)\n", acc.Lamports, acc.Lamports.SOL())
	fmt.Printf("Data:       %d bytes\n", len(acc.Data))
	fmt.Printf("Executable: %v\n", acc.Executable)

	switch acc.Owner {
	case types.PersonTokenProgramID:
		printPerson(acc.Data)
	case types.Token2022ProgramID:
		printTokenAccount(acc.Data)
	}
	return nil
}

func printPerson(data []byte) {
	p, err := persontoken.UnpackPerson(data)
	if err != nil {
		fmt.Printf("Person:     undecodable (%v)\n", err)
		return
	}
	fmt.Printf("Person:\n")
	fmt.Printf("  Signer:    %s\n", p.Signer)
	fmt.Printf("  Mint:      %s\n", p.Mint)
	fmt.Printf("  Authority: %s\n", p.Authority)
	fmt.Printf("  Bump:      %d\n", p.Bump)
}

func isMint(data []byte) bool {
	if len(data) == token.MintSize {
		return true
	}
	return len(data) > token.TokenAccountSize && token.AccountType(data[token.TokenAccountSize]) == token.AccountTypeMint
}

func printTokenAccount(data []byte) {
	if !isMint(data) {
		acc, err := token.DeserializeTokenAccount(data)
		if err != nil {
			fmt.Printf("Token account: undecodable (%v)\n", err)
			return
		}
		fmt.Printf("Token account:\n")
		fmt.Printf("  Mint:   %s\n", acc.Mint)
		fmt.Printf("  Owner:  %s\n", acc.Owner)
		fmt.Printf("  Amount: %d\n", acc.Amount)
		return
	}

	mint, err := token.DeserializeMint(data)
	if err != nil {
		fmt.Printf("Mint: undecodable (%v)\n", err)
		return
	}
	authority := "none"
	if mint.MintAuthority.IsSome {
		authority = mint.MintAuthority.Value.String()
	}
	fmt.Printf("Mint:\n")
	fmt.Printf("  Supply:         %d\n", mint.Supply)
	fmt.Printf("  Decimals:       %d\n", mint.Decimals)
	fmt.Printf("  Mint authority: %s\n", authority)

	if exts, err := token.GetExtensionTypes(data); err == nil && len(exts) > 0 {
		names := make([]string, len(exts))
		for i, e := range exts {
			names[i] = e.String()
		}
		fmt.Printf("  Extensions:     %s\n", strings.Join(names, ", "))
	}
	if md, err := token.GetTokenMetadata(data); err == nil {
		fmt.Printf("  Name:           %s\n", md.Name)
		fmt.Printf("  Symbol:         %s\n", md.Symbol)
		fmt.Printf("  URI:            %s\n", md.URI)
		for _, kv := range md.AdditionalMetadata {
			fmt.Printf("  %-15s %s\n", kv.Key+":", kv.Value)
		}
	}
}

func runSnapshot(args []string) error {
	if len(args) != 2 || (args[0] != "export" && args[0] != "import") {
		return fmt.Errorf("%w: snapshot export|import <file>", errUsage)
	}
	path := args[1]

	if args[0] == "import" {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		manifest, err := snapshot.ImportFile(db, path)
		if err != nil {
			return err
		}
		log.Printf("Imported %d accounts (%d lamports) from slot %d, accounts hash %s",
			manifest.AccountsCount, manifest.LamportsTotal, manifest.Slot, manifest.AccountsHash)
		return nil
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()
	manifest, err := snapshot.ExportFile(l.db, path, snapshot.Info{
		Slot:      l.bank.Slot(),
		Blockhash: l.bank.LatestBlockhash(),
	})
	if err != nil {
		return err
	}
	log.Printf("Exported %d accounts (%d lamports) to %s, accounts hash %s",
		manifest.AccountsCount, manifest.LamportsTotal, path, manifest.AccountsHash)
	return nil
}

func runMetrics(args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	once := fs.Bool("once", false, "Print the metrics once and exit")
	interval := fs.Duration("interval", 30*time.Second, "Ledger scan interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	collector := metrics.NewLedgerCollector(l.metrics, l.db, *dataDir, *interval)
	if *once {
		if err := collector.Collect(); err != nil {
			return err
		}
		fmt.Print(l.metrics.Format())
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := metrics.NewServer(l.metrics, *metricsAddr, func() metrics.LedgerStatus {
		return metrics.LedgerStatus{
			Slot:      uint64(l.bank.Slot()),
			Blockhash: l.bank.LatestBlockhash().String(),
			Accounts:  l.db.GetAccountsCount(),
		}
	})
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	collector.Start(ctx)
	log.Printf("Prometheus metrics server listening on %s", server.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down...", sig)

	collector.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping metrics server: %v", err)
	}
	return nil
}
