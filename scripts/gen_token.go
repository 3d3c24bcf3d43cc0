// Command gen_token prints a merchant JWT for the gateway.
//
//	go run scripts/gen_token.go -merchant MERCH_CRYPTO_001 -ttl 2h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/chungtau/mti-gateway/internal/auth"
)

func main() {
	merchantID := flag.String("merchant", "MERCH_BANK_001", "merchant_id claim")
	subject := flag.String("sub", "", "subject claim (default: random)")
	secret := flag.String("secret", envOr("JWT_SECRET", "dev-secret-key"), "HS256 secret")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	addr := flag.String("addr", "http://localhost:8080", "gateway base URL for the usage hints")
	flag.Parse()

	if *subject == "" {
		*subject = "cli-" + uuid.NewString()
	}

	token, expiresAt, err := auth.Issue(*secret, *merchantID, *subject, *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "merchant=%s sub=%s expires=%s\n", *merchantID, *subject, expiresAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(os.Stderr, "  curl -H 'Authorization: Bearer %s' %s/v1/transactions\n", token, *addr)
	fmt.Fprintf(os.Stderr, "  curl -N '%s/v1/events?access_token=%s'\n", *addr, token)
	// Token alone on stdout so it can be captured: TOKEN=$(go run scripts/gen_token.go)
	fmt.Println(token)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
