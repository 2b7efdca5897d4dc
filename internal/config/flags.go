package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-b string   remote store backend: github, s3 or postgres
//	-d string   sqlite cache file
//	-t int      store request timeout in seconds
//	-o string   GitHub repository owner
//	-r string   GitHub repository name
//	-s string   S3 bucket
//	-p string   Postgres DSN
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-b", "-d", "-t", "-o", "-r", "-s", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "remote store backend (github, s3, postgres)")
	fs.StringVar(&cfg.CacheDSN, "d", cfg.CacheDSN, "sqlite cache file")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "store request timeout (in seconds)")
	fs.StringVar(&cfg.GitHubOwner, "o", cfg.GitHubOwner, "GitHub repository owner")
	fs.StringVar(&cfg.GitHubRepo, "r", cfg.GitHubRepo, "GitHub repository name")
	fs.StringVar(&cfg.S3Bucket, "s", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.PostgresDSN, "p", cfg.PostgresDSN, "Postgres DSN")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
