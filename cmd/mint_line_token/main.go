// Mints a line token for a messaging gateway to call the intake endpoint.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lucianoflow8/flowtracking-receipts/pkg/auth"
)

func main() {
	project := flag.String("project", "", "project id the token is scoped to")
	line := flag.String("line", "", "line id the token is scoped to")
	ttl := flag.Duration("ttl", 0, "token lifetime (0 = no expiry)")
	flag.Parse()

	if *project == "" || *line == "" {
		fmt.Fprintln(os.Stderr, "usage: mint_line_token -project <id> -line <id> [-ttl 720h]")
		os.Exit(2)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set")
		os.Exit(2)
	}

	token, err := auth.MintLineToken([]byte(secret), *project, *line, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mint token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
