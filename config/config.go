// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/serpmillers/m4c/model"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "M4C"

	DefaultModelName = "mf.bin"
)

// Config is the configuration for the recommender.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Server   ServerConfig   `mapstructure:"server"`
	Training TrainingConfig `mapstructure:"training"`
	Tuning   TuningConfig   `mapstructure:"tuning"`
}

// DatabaseConfig is the configuration for the account store and the recommendation cache.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	CacheStore  string `mapstructure:"cache_store" validate:"required,cache_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// BlobConfig locates the persisted model.
type BlobConfig struct {
	URI       string   `mapstructure:"uri" validate:"required"`
	ModelName string   `mapstructure:"model_name" validate:"required"`
	S3        S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// ServerConfig is the configuration for the REST server.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	APIKey         string        `mapstructure:"api_key"`
	DefaultN       int           `mapstructure:"default_n" validate:"gt=0"`
	CookieHashKey  string        `mapstructure:"cookie_hash_key"`
	CookieBlockKey string        `mapstructure:"cookie_block_key" validate:"omitempty,len=16|len=24|len=32"`
	ReloadPeriod   time.Duration `mapstructure:"reload_period" validate:"gte=0"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	// AuthRateLimit caps signup and login requests per minute. Zero disables the limit.
	AuthRateLimit  int           `mapstructure:"auth_rate_limit" validate:"gte=0"`
}

// TrainingConfig holds the hyper-parameters of matrix factorization.
type TrainingConfig struct {
	NFactors    int     `mapstructure:"n_factors" validate:"gt=0"`
	Lr          float32 `mapstructure:"lr" validate:"gt=0"`
	Reg         float32 `mapstructure:"reg" validate:"gte=0"`
	NEpochs     int     `mapstructure:"n_epochs" validate:"gte=0"`
	InitStdDev  float32 `mapstructure:"init_std" validate:"gte=0"`
	RandomState int64   `mapstructure:"random_state"`
	TestSize    float32 `mapstructure:"test_size" validate:"gte=0,lt=1"`
	Shuffle     bool    `mapstructure:"shuffle"`
}

// Params converts the training section to model parameters.
func (c *TrainingConfig) Params() model.Params {
	return model.Params{
		model.NFactors:    c.NFactors,
		model.Lr:          c.Lr,
		model.Reg:         c.Reg,
		model.NEpochs:     c.NEpochs,
		model.InitStdDev:  c.InitStdDev,
		model.RandomState: c.RandomState,
		model.Shuffle:     c.Shuffle,
	}
}

type TuningConfig struct {
	NTrials int `mapstructure:"n_trials" validate:"gt=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataStore:  "sqlite://data.db",
			CacheStore: "local://",
		},
		Blob: BlobConfig{
			URI:       "file://models",
			ModelName: DefaultModelName,
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8088,
			DefaultN:      5,
			ReloadPeriod:  0,
			CacheTTL:      5 * time.Minute,
			AuthRateLimit: 60,
		},
		Training: TrainingConfig{
			NFactors:    32,
			Lr:          0.01,
			Reg:         1e-5,
			NEpochs:     10,
			InitStdDev:  0.1,
			RandomState: 42,
			TestSize:    0.2,
		},
		Tuning: TuningConfig{
			NTrials: 20,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	viper.SetDefault("database.cache_store", defaultConfig.Database.CacheStore)
	viper.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [blob]
	viper.SetDefault("blob.uri", defaultConfig.Blob.URI)
	viper.SetDefault("blob.model_name", defaultConfig.Blob.ModelName)
	viper.SetDefault("blob.s3.endpoint", "")
	viper.SetDefault("blob.s3.access_key_id", "")
	viper.SetDefault("blob.s3.secret_access_key", "")
	viper.SetDefault("blob.s3.use_ssl", false)
	// [server]
	viper.SetDefault("server.host", defaultConfig.Server.Host)
	viper.SetDefault("server.port", defaultConfig.Server.Port)
	viper.SetDefault("server.api_key", "")
	viper.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	viper.SetDefault("server.cookie_hash_key", "")
	viper.SetDefault("server.cookie_block_key", "")
	viper.SetDefault("server.reload_period", defaultConfig.Server.ReloadPeriod)
	viper.SetDefault("server.cache_ttl", defaultConfig.Server.CacheTTL)
	viper.SetDefault("server.auth_rate_limit", defaultConfig.Server.AuthRateLimit)
	// [training]
	viper.SetDefault("training.n_factors", defaultConfig.Training.NFactors)
	viper.SetDefault("training.lr", defaultConfig.Training.Lr)
	viper.SetDefault("training.reg", defaultConfig.Training.Reg)
	viper.SetDefault("training.n_epochs", defaultConfig.Training.NEpochs)
	viper.SetDefault("training.init_std", defaultConfig.Training.InitStdDev)
	viper.SetDefault("training.random_state", defaultConfig.Training.RandomState)
	viper.SetDefault("training.test_size", defaultConfig.Training.TestSize)
	viper.SetDefault("training.shuffle", defaultConfig.Training.Shuffle)
	// [tuning]
	viper.SetDefault("tuning.n_trials", defaultConfig.Tuning.NTrials)
}

// LoadConfig loads configuration from a TOML file. An empty path loads the defaults. Every key can be
// overridden by an environment variable, e.g. M4C_SERVER_PORT for server.port.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	setDefault()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigType("toml")
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}

	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks the configuration.
func (config *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		return hasPrefix(fl.Field().String(), DataStorePrefixes)
	}); err != nil {
		return errors.Trace(err)
	}
	if err := validate.RegisterValidation("cache_store", func(fl validator.FieldLevel) bool {
		return hasPrefix(fl.Field().String(), CacheStorePrefixes)
	}); err != nil {
		return errors.Trace(err)
	}
	return validate.Struct(config)
}

// DataStorePrefixes are the supported URL schemes of the account store.
var DataStorePrefixes = []string{"mysql://", "postgres://", "postgresql://", "sqlite://"}

// CacheStorePrefixes are the supported URL schemes of the recommendation cache.
var CacheStorePrefixes = []string{"redis://", "rediss://", "local://"}

func hasPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
