// Command hashtoken prints a fresh trigger token and the bcrypt hash to put
// in TRIGGER_TOKEN_HASH. Pass a token as the only argument to hash it instead.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ganttmailer/internal/auth"
)

func main() {
	token := auth.GenerateToken()
	if len(os.Args) > 1 {
		token = os.Args[1]
	}

	hash, err := auth.Hash(token)
	if err != nil {
		slog.Error("failed to hash token", "err", err)
		os.Exit(1)
	}

	fmt.Printf("token: %s\n", token)
	fmt.Printf("TRIGGER_TOKEN_HASH=%s\n", hash)
}
