package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3001")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN or sqlite:<path>; empty selects the JSON file index
//	-f string   JSON records file
//	-u string   uploads spool directory
//	-n int      block confirmations to wait for
//	-t int      per-ledger timeout, seconds
//
// Only these flags are kept by flagx.FilterArgs, so -c / -config handled by
// the JSON layer doesn't collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-f", "-u", "-n", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "address and port to run gRPC health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RecordsFile, "f", config.RecordsFile, "records index file")
	fs.StringVar(&config.UploadsDir, "u", config.UploadsDir, "uploads directory")
	fs.IntVar(&config.Confirmations, "n", config.Confirmations, "network confirmations")

	ledgerTimeout := fs.Int("t", int(config.LedgerTimeout.Seconds()), "ledger timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.LedgerTimeout = time.Duration(*ledgerTimeout) * time.Second
}
