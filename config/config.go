package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SuperSchedules/superschedules/internal/types"
)

//go:embed config.yml
var embeddedConfig []byte

const envPrefix = "SUPERSCHEDULES"

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
			MaxConns          int32  `mapstructure:"maxConns"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	Embedding Embedding `mapstructure:"embedding"`
	Locations Locations `mapstructure:"locations"`
	Retrieval Retrieval `mapstructure:"retrieval"`
	Corpus    struct {
		RefreshInterval time.Duration `mapstructure:"refreshInterval"`
		BatchSize       int           `mapstructure:"batchSize"`
	} `mapstructure:"corpus"`
}

// Embedding configures the query/event vector provider.
type Embedding struct {
	// Provider is one of "hashing", "gemini" or "service".
	Provider               string        `mapstructure:"provider"`
	Model                  string        `mapstructure:"model"`
	Dimension              int           `mapstructure:"dimension"`
	APIKey                 string        `mapstructure:"apiKey"`
	ServiceURL             string        `mapstructure:"serviceURL"`
	Timeout                time.Duration `mapstructure:"timeout"`
	MaxRetries             int           `mapstructure:"maxRetries"`
	MaxConcurrentInference int64         `mapstructure:"maxConcurrentInference"`
	Cache                  struct {
		Size int           `mapstructure:"size"`
		TTL  time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`
}

type Locations struct {
	PreferredStates []string `mapstructure:"preferredStates"`
	MaxAlternatives int      `mapstructure:"maxAlternatives"`
	// Confidence values left unset keep the resolver defaults; 0 is a valid setting.
	Confidence struct {
		Exact     *float64 `mapstructure:"exact"`
		Unique    *float64 `mapstructure:"unique"`
		Preferred *float64 `mapstructure:"preferred"`
		Ambiguous *float64 `mapstructure:"ambiguous"`
	} `mapstructure:"confidence"`
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
}

type Retrieval struct {
	MaxCandidates        int                  `mapstructure:"maxCandidates"`
	SimilarityThreshold  float64              `mapstructure:"similarityThreshold"`
	DefaultRadiusMiles   float64              `mapstructure:"defaultRadiusMiles"`
	DistanceMode         string               `mapstructure:"distanceMode"`
	TimeWindowDays       int                  `mapstructure:"timeWindowDays"`
	NeutralLocationScore float64              `mapstructure:"neutralLocationScore"`
	NeutralPopularity    float64              `mapstructure:"neutralPopularity"`
	Weights              types.ScoringWeights `mapstructure:"weights"`
	Tiers                types.TierCaps       `mapstructure:"tiers"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// Validate rejects settings the retrieval pipeline cannot run with.
func (c Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if err := c.Retrieval.Weights.Validate(); err != nil {
		return fmt.Errorf("retrieval.weights: %w", err)
	}
	if err := c.Retrieval.Tiers.Validate(); err != nil {
		return fmt.Errorf("retrieval.tiers: %w", err)
	}
	if _, err := types.ParseDistanceMode(c.Retrieval.DistanceMode); err != nil {
		return fmt.Errorf("retrieval.distanceMode: %w", err)
	}
	for name, v := range map[string]*float64{
		"exact":     c.Locations.Confidence.Exact,
		"unique":    c.Locations.Confidence.Unique,
		"preferred": c.Locations.Confidence.Preferred,
		"ambiguous": c.Locations.Confidence.Ambiguous,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("locations.confidence.%s must be within [0,1], got %g", name, *v)
		}
	}
	return nil
}
