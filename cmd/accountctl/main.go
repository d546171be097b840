// Command accountctl manages the pooled vendor accounts in the snapshot
// store used by the bot. The bot itself only switches between accounts;
// adding and removing them is an operator action.
//
// Usage:
//
//	accountctl list
//	accountctl add <name> <email>
//	accountctl switch <name>
//	accountctl remove <name>
//
// Store settings come from the same configuration sources as the bot
// (defaults, -c/-config JSON file, environment, flags).
package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/deykows/giftkeeper/internal/accounts"
	"github.com/deykows/giftkeeper/internal/app"
	"github.com/deykows/giftkeeper/internal/config"
	"github.com/deykows/giftkeeper/internal/logging"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "accountctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: accountctl <list|add|switch|remove> [args]")
	}

	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()
	if cfg.SealSecret == "" {
		return fmt.Errorf("seal secret is not configured")
	}

	store, db, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	pool := accounts.NewStore(store, []byte(cfg.SealSecret), logging.NewDiscardLogger())
	if err := pool.Load(ctx); err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	switch args[0] {
	case "list":
		return list(pool)
	case "add":
		if len(args) != 3 {
			return fmt.Errorf("usage: accountctl add <name> <email>")
		}
		return add(ctx, pool, args[1], args[2])
	case "switch":
		if len(args) != 2 {
			return fmt.Errorf("usage: accountctl switch <name>")
		}
		return switchTo(ctx, pool, args[1])
	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("usage: accountctl remove <name>")
		}
		return pool.Remove(ctx, args[1])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func list(pool *accounts.Store) error {
	current := pool.CurrentName()
	for _, acc := range pool.List() {
		marker := " "
		if acc.Name == current {
			marker = "*"
		}
		fmt.Printf("%s %-12s %-30s %6d gems\n", marker, acc.Name, acc.Email, acc.GemCount)
	}
	return nil
}

func add(ctx context.Context, pool *accounts.Store, name, email string) error {
	fmt.Printf("Password for %s: ", email)
	pw, err := readPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if len(pw) == 0 {
		return fmt.Errorf("password must not be empty")
	}

	if err := pool.Add(ctx, name, email, string(pw)); err != nil {
		return err
	}
	fmt.Printf("added account %q\n", name)
	return nil
}

func switchTo(ctx context.Context, pool *accounts.Store, name string) error {
	if err := pool.SwitchTo(ctx, name); err != nil {
		return err
	}
	fmt.Printf("current account is now %q\n", name)
	return nil
}
