package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/educhain/internal/flagx"
)

// parseFlags overlays command-line flags onto config.
//
// Supported flags (short forms):
//
//	-a string   HTTP listen address (e.g. ":8080")
//	-d string   PostgreSQL DSN
//	-s string   HMAC secret for certificate verification tokens
//	-k string   Sui platform signing key
//	-r string   Sui JSON-RPC endpoint
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-l string   log level
//
// Only these flags are taken from os.Args (see flagx.FilterArgs), so the
// -c/-config flag of the JSON layer does not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-k", "-r", "-u", "-p", "-b", "-g", "-e", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.SuiSecretKey, "k", config.SuiSecretKey, "Sui platform signing key")
	fs.StringVar(&config.SuiRPCURL, "r", config.SuiRPCURL, "Sui JSON-RPC endpoint")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
