package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestParseEnv(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	parseEnv(cfg, mapLookup(map[string]string{
		"PORT":                      "8080",
		"DATABASE_DSN":              "postgres://db",
		"DELETE_TEMP_FILES":         "true",
		"PINATA_JWT":                " jwt ",
		"PRIVATE_KEY":               "0xkey",
		"NETWORK_CONFIRMATIONS":     "4",
		"SCROLL_CONTRACT_ADDRESS":   "0xscroll",
		"ARBITRUM_SEPOLIA_RPC_URL":  "https://arb.example",
		"ARBITRUM_CONTRACT_ADDRESS": "0xarb",
		"S3_BUCKET":                 "mirror",
	}))

	assert.Equal(t, ":8080", cfg.EndpointAddrHTTP)
	assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
	assert.True(t, cfg.DeleteTempFiles)
	assert.Equal(t, "jwt", cfg.PinataJWT)
	assert.Equal(t, "0xkey", cfg.SigningKey)
	assert.Equal(t, 4, cfg.Confirmations)

	require.Len(t, cfg.Ledgers, 2)
	assert.Equal(t, "https://sepolia-rpc.scroll.io", cfg.Ledgers[0].RPCURL)
	assert.Equal(t, "0xscroll", cfg.Ledgers[0].ContractAddress)
	assert.Equal(t, "https://arb.example", cfg.Ledgers[1].RPCURL)
	assert.Equal(t, "0xarb", cfg.Ledgers[1].ContractAddress)
	assert.True(t, cfg.MirrorEnabled())
}

func TestParseEnv_PrimaryRPCWinsOverFallback(t *testing.T) {
	cfg := &Config{Ledgers: []LedgerConfig{{Name: "scroll"}}}
	parseEnv(cfg, mapLookup(map[string]string{
		"SCROLL_RPC_URL":         "https://primary",
		"SCROLL_SEPOLIA_RPC_URL": "https://fallback",
	}))
	assert.Equal(t, "https://primary", cfg.Ledgers[0].RPCURL)
}

func TestParseEnv_EmptyValuesIgnored(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg, mapLookup(map[string]string{"PORT": "", "PINATA_JWT": "  "}))
	assert.Equal(t, ":3001", cfg.EndpointAddrHTTP)
	assert.Empty(t, cfg.PinataJWT)
}

func TestParseEnv_PortWithHost(t *testing.T) {
	cfg := &Config{}
	parseEnv(cfg, mapLookup(map[string]string{"PORT": "0.0.0.0:9000"}))
	assert.Equal(t, "0.0.0.0:9000", cfg.EndpointAddrHTTP)
}

func TestParseEnv_Malformed(t *testing.T) {
	for _, env := range []map[string]string{
		{"DELETE_TEMP_FILES": "maybe"},
		{"NETWORK_CONFIRMATIONS": "zero"},
		{"NETWORK_CONFIRMATIONS": "0"},
	} {
		require.Panics(t, func() { parseEnv(&Config{}, mapLookup(env)) })
	}
}
