package main

import (
	"flag"
	"fmt"
	"os"

	"classsync/internal/auth"
	"classsync/internal/config"
)

// token mints a bearer token for local testing against the API. Identity
// and credential storage live outside this service.
func main() {
	sub := flag.String("sub", "", "student or teacher id")
	role := flag.String("role", string(auth.RoleStudent), "student|teacher")
	flag.Parse()

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "usage: token -sub <id> [-role student|teacher]")
		os.Exit(2)
	}
	r := auth.Role(*role)
	if r != auth.RoleStudent && r != auth.RoleTeacher {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg := config.Load()
	tok, exp, err := auth.Issue(*sub, r, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n# expires %s\n", tok, exp.Format("2006-01-02 15:04:05 MST"))
}
