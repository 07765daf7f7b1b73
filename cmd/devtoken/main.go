package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"backend-slopetrack/internal/auth"
	"backend-slopetrack/internal/config"
)

var errUsage = errors.New("usage")

var loadConfig = config.Load

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "devtoken failed: %v\n", err)
		os.Exit(1)
	}
}

// run prints a device token signed with the configured JWT secret.
func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("devtoken", flag.ContinueOnError)
	fs.SetOutput(out)
	deviceID := fs.String("device", "", "Device id to embed in the token")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *deviceID == "" {
		fmt.Fprintln(out, "Usage: devtoken --device <id> [--ttl 720h]")
		fs.PrintDefaults()
		return errUsage
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is empty")
	}
	token, err := auth.SignDeviceToken(cfg.JWTSecret, *deviceID, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
