package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/evidencekeeper/internal/flagx"
	"github.com/dmitrijs2005/evidencekeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations accept
// both "60s" style strings and integer nanoseconds. Zero values leave the
// current setting untouched.
type JsonConfig struct {
	EndpointAddrHTTP   string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC   string         `json:"endpoint_addr_grpc"`
	DatabaseDSN        string         `json:"database_dsn"`
	RecordsFile        string         `json:"records_file"`
	LogLevel           string         `json:"log_level"`
	UploadsDir         string         `json:"uploads_dir"`
	DeleteTempFiles    *bool          `json:"delete_temp_files"`
	MaxUploadSize      int64          `json:"max_upload_size"`
	PinataJWT          string         `json:"pinata_jwt"`
	PinataAPIURL       string         `json:"pinata_api_url"`
	Gateways           []string       `json:"gateways"`
	MaxGatewayAttempts int            `json:"max_gateway_attempts"`
	GatewayTimeout     timex.Duration `json:"gateway_timeout"`
	SigningKey         string         `json:"signing_key"`
	Confirmations      int            `json:"confirmations"`
	LedgerTimeout      timex.Duration `json:"ledger_timeout"`
	Ledgers            []LedgerConfig `json:"ledgers"`
	S3User             string         `json:"s3_user"`
	S3Password         string         `json:"s3_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	S3Prefix           string         `json:"s3_prefix"`
}

// parseJson loads the file named by -c / -config, if any, and overlays it on
// config. An unreadable or malformed file panics: the process can't start
// with a configuration it was told to use and couldn't read.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RecordsFile, c.RecordsFile)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.UploadsDir, c.UploadsDir)
	if c.DeleteTempFiles != nil {
		config.DeleteTempFiles = *c.DeleteTempFiles
	}
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	setString(&config.PinataJWT, c.PinataJWT)
	setString(&config.PinataAPIURL, c.PinataAPIURL)
	if len(c.Gateways) > 0 {
		config.Gateways = c.Gateways
	}
	if c.MaxGatewayAttempts > 0 {
		config.MaxGatewayAttempts = c.MaxGatewayAttempts
	}
	if c.GatewayTimeout.Duration > 0 {
		config.GatewayTimeout = c.GatewayTimeout.Duration
	}
	setString(&config.SigningKey, c.SigningKey)
	if c.Confirmations > 0 {
		config.Confirmations = c.Confirmations
	}
	if c.LedgerTimeout.Duration > 0 {
		config.LedgerTimeout = c.LedgerTimeout.Duration
	}
	if len(c.Ledgers) > 0 {
		config.Ledgers = c.Ledgers
	}
	setString(&config.S3User, c.S3User)
	setString(&config.S3Password, c.S3Password)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3Prefix, c.S3Prefix)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
