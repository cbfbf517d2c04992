package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mehdi-it48/medisync-lite/internal/frontdesk"
	"github.com/mehdi-it48/medisync-lite/pkg/config"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// issue-token prints an access token for a front-desk screen or operator
func main() {
	userID := flag.String("user", "", "user id carried by the token")
	username := flag.String("name", "", "display name")
	role := flag.String("role", string(types.RoleReceptionist), "receptionist, doctor, accountant or administrator")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	token, err := frontdesk.NewTokenValidator(cfg.JWT).IssueToken(&types.UserClaims{
		UserID:   *userID,
		Username: *username,
		Role:     types.UserRole(*role),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(token)
}
