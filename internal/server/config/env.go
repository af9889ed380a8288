package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

var osLookupEnv = os.LookupEnv

// parseEnv overlays environment variables. Per-ledger settings use the
// upper-cased ledger name as prefix, e.g. SCROLL_RPC_URL and
// SCROLL_CONTRACT_ADDRESS; <NAME>_SEPOLIA_RPC_URL is accepted as a fallback
// RPC variable. Malformed numeric or boolean values panic like bad flags do.
func parseEnv(config *Config, lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get("PORT"); ok {
		if !strings.Contains(v, ":") {
			v = ":" + v
		}
		config.EndpointAddrHTTP = v
	}
	if v, ok := get("DATABASE_DSN"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := get("RECORDS_FILE"); ok {
		config.RecordsFile = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		config.LogLevel = v
	}
	if v, ok := get("DELETE_TEMP_FILES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(fmt.Errorf("DELETE_TEMP_FILES: %w", err))
		}
		config.DeleteTempFiles = b
	}
	if v, ok := get("PINATA_JWT"); ok {
		config.PinataJWT = v
	}
	if v, ok := get("PRIVATE_KEY"); ok {
		config.SigningKey = v
	}
	if v, ok := get("NETWORK_CONFIRMATIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			panic(fmt.Errorf("NETWORK_CONFIRMATIONS: invalid value %q", v))
		}
		config.Confirmations = n
	}

	for i := range config.Ledgers {
		l := &config.Ledgers[i]
		prefix := strings.ToUpper(l.Name)
		if v, ok := get(prefix + "_RPC_URL"); ok {
			l.RPCURL = v
		} else if v, ok := get(prefix + "_SEPOLIA_RPC_URL"); ok {
			l.RPCURL = v
		}
		if v, ok := get(prefix + "_CONTRACT_ADDRESS"); ok {
			l.ContractAddress = v
		}
	}

	if v, ok := get("S3_USER"); ok {
		config.S3User = v
	}
	if v, ok := get("S3_PASSWORD"); ok {
		config.S3Password = v
	}
	if v, ok := get("S3_BUCKET"); ok {
		config.S3Bucket = v
	}
	if v, ok := get("S3_REGION"); ok {
		config.S3Region = v
	}
	if v, ok := get("S3_BASE_ENDPOINT"); ok {
		config.S3BaseEndpoint = v
	}
}
