package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/educhain/internal/flagx"
	"github.com/dmitrijs2005/educhain/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON configuration file. Durations
// use timex.Duration so both "30s" and integer nanoseconds are accepted.
// Fields left out of the file do not override earlier layers.
type JsonConfig struct {
	ListenAddr  string `json:"listen_addr"`
	DatabaseDSN string `json:"database_dsn"`

	SessionHashKey  string         `json:"session_hash_key"`
	SessionBlockKey string         `json:"session_block_key"`
	SessionTTL      timex.Duration `json:"session_ttl"`
	CookieSecure    *bool          `json:"cookie_secure"`
	BcryptCost      int            `json:"bcrypt_cost"`

	SecretKey      string         `json:"secret_key"`
	VerifyTokenTTL timex.Duration `json:"verify_token_ttl"`

	StaticDir       string `json:"static_dir"`
	UploadBackend   string `json:"upload_backend"`
	UploadDir       string `json:"upload_dir"`
	UploadURLPrefix string `json:"upload_url_prefix"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	SuiRPCURL           string         `json:"sui_rpc_url"`
	SuiSecretKey        string         `json:"sui_secret_key"`
	SuiPackageID        string         `json:"sui_package_id"`
	SuiModule           string         `json:"sui_module"`
	SuiFunction         string         `json:"sui_function"`
	SuiFactoryObject    string         `json:"sui_factory_object"`
	SuiGasBudget        uint64         `json:"sui_gas_budget"`
	SuiRequestTimeout   timex.Duration `json:"sui_request_timeout"`
	FundingPollInterval timex.Duration `json:"funding_poll_interval"`
	FundingPollAttempts uint64         `json:"funding_poll_attempts"`
	ConfirmTimeout      timex.Duration `json:"confirm_timeout"`
	ConfirmPollInterval timex.Duration `json:"confirm_poll_interval"`
	CredentialTitle     string         `json:"credential_title"`

	ReconcileInterval timex.Duration `json:"reconcile_interval"`
	ReconcileGrace    timex.Duration `json:"reconcile_grace"`

	CORSOrigins []string `json:"cors_origins"`
	LogLevel    string   `json:"log_level"`
	LogFormat   string   `json:"log_format"`
}

// parseJson loads the file named by -c/-config (or $EDUCHAIN_CONFIG) and
// copies every non-zero value into config. Unreadable or invalid files panic.
func parseJson(config *Config) {
	path := flagx.ConfigPath()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.ListenAddr, c.ListenAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SessionHashKey, c.SessionHashKey)
	setString(&config.SessionBlockKey, c.SessionBlockKey)
	setDuration(&config.SessionTTL, c.SessionTTL)
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.VerifyTokenTTL, c.VerifyTokenTTL)

	setString(&config.StaticDir, c.StaticDir)
	setString(&config.UploadBackend, c.UploadBackend)
	setString(&config.UploadDir, c.UploadDir)
	setString(&config.UploadURLPrefix, c.UploadURLPrefix)

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setString(&config.SuiRPCURL, c.SuiRPCURL)
	setString(&config.SuiSecretKey, c.SuiSecretKey)
	setString(&config.SuiPackageID, c.SuiPackageID)
	setString(&config.SuiModule, c.SuiModule)
	setString(&config.SuiFunction, c.SuiFunction)
	setString(&config.SuiFactoryObject, c.SuiFactoryObject)
	if c.SuiGasBudget != 0 {
		config.SuiGasBudget = c.SuiGasBudget
	}
	setDuration(&config.SuiRequestTimeout, c.SuiRequestTimeout)
	setDuration(&config.FundingPollInterval, c.FundingPollInterval)
	if c.FundingPollAttempts != 0 {
		config.FundingPollAttempts = c.FundingPollAttempts
	}
	setDuration(&config.ConfirmTimeout, c.ConfirmTimeout)
	setDuration(&config.ConfirmPollInterval, c.ConfirmPollInterval)
	setString(&config.CredentialTitle, c.CredentialTitle)

	setDuration(&config.ReconcileInterval, c.ReconcileInterval)
	setDuration(&config.ReconcileGrace, c.ReconcileGrace)

	if len(c.CORSOrigins) > 0 {
		config.CORSOrigins = c.CORSOrigins
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
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
