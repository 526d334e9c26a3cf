package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/afriswift/settlement/internal/flagx"
	"github.com/afriswift/settlement/internal/timex"
)

// JsonConfig is the on-disk shape of the -c/-config file. Durations accept
// both "30s" style strings and integer nanoseconds. Fields left out of the
// file keep whatever value the previous layer set.
type JsonConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	OpsAddr                      string         `json:"ops_addr"`
	OpsAdminToken                string         `json:"ops_admin_token"`
	DatabaseDSN                  string         `json:"database_dsn"`
	LogBackend                   string         `json:"log_backend"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	HorizonURL                   string         `json:"horizon_url"`
	FriendbotURL                 string         `json:"friendbot_url"`
	AssetCode                    string         `json:"asset_code"`
	AssetIssuer                  string         `json:"asset_issuer"`
	TransferValidity             timex.Duration `json:"transfer_validity"`
	HTTPTimeout                  timex.Duration `json:"http_timeout"`
	AnchorURL                    string         `json:"anchor_url"`
	AnchorRequestsPerSec         float64        `json:"anchor_requests_per_sec"`
	ServiceSeed                  string         `json:"service_seed"`
	TokenLeadTime                timex.Duration `json:"token_lead_time"`
	TokenDefaultValidity         timex.Duration `json:"token_default_validity"`
	TokenRefreshTimeout          timex.Duration `json:"token_refresh_timeout"`
	CustodyPassphrase            string         `json:"custody_passphrase"`
	CustodySalt                  string         `json:"custody_salt"`
	RatesFile                    string         `json:"rates_file"`
	LedgerRetryWindow            timex.Duration `json:"ledger_retry_window"`
	ReconcileInterval            timex.Duration `json:"reconcile_interval"`
	ReconcileGrace               timex.Duration `json:"reconcile_grace"`
	ReconcileBatchSize           int            `json:"reconcile_batch_size"`
}

// parseJson overlays the file named by -c/-config onto config. Nothing
// happens without the flag. An unreadable or malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.OpsAddr, c.OpsAddr)
	setString(&config.OpsAdminToken, c.OpsAdminToken)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.HorizonURL, c.HorizonURL)
	setString(&config.FriendbotURL, c.FriendbotURL)
	setString(&config.AssetCode, c.AssetCode)
	setString(&config.AssetIssuer, c.AssetIssuer)
	setDuration(&config.TransferValidity, c.TransferValidity)
	setDuration(&config.HTTPTimeout, c.HTTPTimeout)
	setString(&config.AnchorURL, c.AnchorURL)
	if c.AnchorRequestsPerSec > 0 {
		config.AnchorRequestsPerSec = c.AnchorRequestsPerSec
	}
	setString(&config.ServiceSeed, c.ServiceSeed)
	setDuration(&config.TokenLeadTime, c.TokenLeadTime)
	setDuration(&config.TokenDefaultValidity, c.TokenDefaultValidity)
	setDuration(&config.TokenRefreshTimeout, c.TokenRefreshTimeout)
	setString(&config.CustodyPassphrase, c.CustodyPassphrase)
	setString(&config.CustodySalt, c.CustodySalt)
	setString(&config.RatesFile, c.RatesFile)
	setDuration(&config.LedgerRetryWindow, c.LedgerRetryWindow)
	setDuration(&config.ReconcileInterval, c.ReconcileInterval)
	setDuration(&config.ReconcileGrace, c.ReconcileGrace)
	if c.ReconcileBatchSize > 0 {
		config.ReconcileBatchSize = c.ReconcileBatchSize
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
