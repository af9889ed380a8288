// Package config handles configuration for the evidence server: defaults,
// a JSON overlay, environment variables and command-line flags.
package config

import "time"

// LedgerConfig describes one anchoring ledger. Order matters: it is the
// order ledgers are reported in and the order lookups prefer.
type LedgerConfig struct {
	Name            string `json:"name"`
	RPCURL          string `json:"rpc_url"`
	ContractAddress string `json:"contract_address"`
	ExplorerURL     string `json:"explorer_url"`
	ChainID         int64  `json:"chain_id"`
}

// Config holds runtime settings for the evidence server.
//
// Fields:
//   - EndpointAddrHTTP / EndpointAddrGRPC: bind addresses for the REST API and the gRPC health endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx), or "sqlite:<path>" for the embedded index.
//     When empty the JSON file index at RecordsFile is used.
//   - UploadsDir / DeleteTempFiles / MaxUploadSize: spooling of incoming uploads.
//   - PinataJWT / PinataAPIURL: pinning service credentials. Never logged.
//   - Gateways / MaxGatewayAttempts / GatewayTimeout: content retrieval.
//   - SigningKey / Confirmations / LedgerTimeout / Ledgers: anchoring.
//   - S3*: optional mirror of pinned content; disabled while S3Bucket is empty.
type Config struct {
	EndpointAddrHTTP string
	EndpointAddrGRPC string
	DatabaseDSN      string
	RecordsFile      string
	LogLevel         string

	UploadsDir      string
	DeleteTempFiles bool
	MaxUploadSize   int64

	PinataJWT          string
	PinataAPIURL       string
	Gateways           []string
	MaxGatewayAttempts int
	GatewayTimeout     time.Duration

	SigningKey    string
	Confirmations int
	LedgerTimeout time.Duration
	Ledgers       []LedgerConfig

	S3User         string
	S3Password     string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3Prefix       string
}

// LoadDefaults populates Config with development defaults. No ledger has a
// contract address, so out of the box every upload is anchored in mock mode.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":3001"
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDSN = ""
	c.RecordsFile = "db/records.json"
	c.LogLevel = "info"

	c.UploadsDir = "uploads"
	c.DeleteTempFiles = false
	c.MaxUploadSize = 500 << 20

	c.PinataAPIURL = "https://api.pinata.cloud"
	c.Gateways = []string{
		"https://ipfs.io/ipfs/",
		"https://gateway.pinata.cloud/ipfs/",
		"https://cloudflare-ipfs.com/ipfs/",
	}
	c.MaxGatewayAttempts = 3
	c.GatewayTimeout = 60 * time.Second

	c.Confirmations = 1
	c.LedgerTimeout = 2 * time.Minute
	c.Ledgers = []LedgerConfig{
		{
			Name:        "scroll",
			RPCURL:      "https://sepolia-rpc.scroll.io",
			ExplorerURL: "https://sepolia.scrollscan.com",
			ChainID:     534351,
		},
		{
			Name:        "arbitrum",
			RPCURL:      "https://sepolia-rollup.arbitrum.io/rpc",
			ExplorerURL: "https://sepolia.arbiscan.io",
			ChainID:     421614,
		},
	}

	c.S3Region = "us-east-1"
	c.S3Prefix = "evidence"
}

// MirrorEnabled reports whether pinned content should also go to S3.
func (c *Config) MirrorEnabled() bool {
	return c.S3Bucket != ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg, osLookupEnv)
	parseFlags(cfg)
	return cfg
}
