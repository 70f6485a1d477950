// Command issue-token mints a staff token for moderators and broadcasters.
// Listener tokens come from POST /api/livechat/session instead.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/martin-1103/gbika-sub001/internal/adapter/token"
	"github.com/martin-1103/gbika-sub001/internal/domain"
)

func main() {
	var (
		secret  = flag.String("secret", os.Getenv("LIVECHAT_TOKEN_SECRET"), "Signing secret (or set LIVECHAT_TOKEN_SECRET env)")
		role    = flag.String("role", string(domain.RoleModerator), "Staff role: moderator or broadcaster")
		subject = flag.String("subject", "", "Stable staff identifier, recorded as moderatedBy")
		name    = flag.String("name", "", "Display name shown on admin replies")
		ttl     = flag.Duration("ttl", 12*time.Hour, "Token lifetime")
		verbose = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *secret == "" {
		log.Fatal("Signing secret required (--secret or LIVECHAT_TOKEN_SECRET env)")
	}
	if *ttl <= 0 {
		log.Fatal("--ttl must be positive")
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	manager := token.NewManager(*secret, clockwork.NewRealClock())
	signed, expiresAt, err := manager.IssueStaff(*subject, *name, domain.Role(*role), *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	slog.Info("Issued staff token", "role", *role, "subject", *subject, "expires_at", expiresAt.Format(time.RFC3339))
	slog.Debug("Token claims", "name", *name, "ttl", ttl.String())

	fmt.Println(signed)
}
