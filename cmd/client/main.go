package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/token-lifecycle/internal/client/api"
	clientauth "github.com/spec-kit/token-lifecycle/internal/client/auth"
	"github.com/spec-kit/token-lifecycle/internal/client/storage/boltdb"
	"github.com/spec-kit/token-lifecycle/internal/config"
	"github.com/spec-kit/token-lifecycle/internal/observability"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	serverURL := flag.String("server", cfg.BaseURL, "Issuer base URL")
	dbPath := flag.String("db", cfg.StatePath, "Path to local state file")
	burstSize := flag.Int("n", 10, "Concurrent calls for the burst command")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	store, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state file: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close state file", zap.Error(err))
		}
	}()

	session := clientauth.NewService(api.NewClient(*serverURL, cfg.Timeout()), store, logger)

	if err := run(ctx, session, args, *burstSize); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, session *clientauth.Service, args []string, burstSize int) error {
	switch args[0] {
	case "register":
		if len(args) != 4 {
			return errors.New("usage: register <email> <password> <name>")
		}
		user, err := session.Register(ctx, args[1], args[2], args[3])
		if err != nil {
			return err
		}
		fmt.Printf("registered %s (%s)\n", user.Email, user.ID)
	case "login":
		if len(args) != 3 {
			return errors.New("usage: login <email> <password>")
		}
		user, err := session.Login(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (%s)\n", user.Name, user.Email)
	case "whoami":
		user, err := session.Resume(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s <%s> id=%s\n", user.Name, user.Email, user.ID)
	case "burst":
		return burst(ctx, session, burstSize)
	case "logout":
		if err := session.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

// burst fires n concurrent whoami calls from a cold access cache; they
// should share a single refresh.
func burst(ctx context.Context, session *clientauth.Service, n int) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := session.WhoAmI(ctx); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	stats := session.Stats()
	fmt.Printf("calls=%d failed=%d refreshes=%d refresh_failures=%d\n", n, failed, stats.Refreshes, stats.Failures)
	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, n)
	}
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: client [-server URL] [-db PATH] [-n N] <command>

commands:
  register <email> <password> <name>
  login <email> <password>
  whoami      resume the stored session and print the identity
  burst       run -n concurrent whoami calls sharing one refresh
  logout`)
}
