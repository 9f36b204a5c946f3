package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"user-account-api/internal/core/auth"
	"user-account-api/internal/core/config"
)

// token 按当前配置的密钥为某个用户签发访问令牌，本地调试用
func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	id := fs.Int64("id", 0, "user id the token is issued for")
	cfgPath := fs.String("config", os.Getenv("CONFIG_PATH"), "config file path")
	ttl := fs.Duration("ttl", 0, "override token lifetime (default: jwt.accessTokenTTLMin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !isSet(fs, "id") {
		return fmt.Errorf("-id is required")
	}

	cfg := config.Load(*cfgPath)
	lifetime := time.Duration(cfg.JWT.AccessTokenTTLMin) * time.Minute
	if *ttl > 0 {
		lifetime = *ttl
	}
	tok, err := auth.NewJWTer(cfg.JWT.Secret, cfg.JWT.Issuer, lifetime).Issue(*id)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}

func isSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
