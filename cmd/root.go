package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/search-evaluator/internal/ai"
	"github.com/spigell/search-evaluator/internal/ai/gemini"
	"github.com/spigell/search-evaluator/internal/ai/openai"
	"github.com/spigell/search-evaluator/internal/imagesearch"
)

const (
	app = "search-evaluator"
)

type Config struct {
	Server     *ServerConfig     `mapstructure:"server"`
	AI         *AIConfig         `mapstructure:"ai"`
	Evaluation *EvaluationConfig `mapstructure:"evaluation"`
	Image      *ImageConfig      `mapstructure:"image"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	Environment  string        `mapstructure:"environment"`
	StaticDir    string        `mapstructure:"static-dir"`
	CORSOrigins  []string      `mapstructure:"cors-origins"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
}

type AIConfig struct {
	Provider     string        `mapstructure:"provider"`
	MaxLogLength int           `mapstructure:"max-log-length"`
	Gemini       *GeminiConfig `mapstructure:"gemini"`
	OpenAI       *OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	BaseURL    string `mapstructure:"base-url"`
	Model      string `mapstructure:"model"`
}

type EvaluationConfig struct {
	BatchConcurrency int `mapstructure:"batch-concurrency"`
}

type ImageConfig struct {
	APIKey           string        `mapstructure:"api-key"`
	APIKeyFile       string        `mapstructure:"api-key-file"`
	BaseURL          string        `mapstructure:"base-url"`
	FallbackURL      string        `mapstructure:"fallback-url"`
	PlaceholderURL   string        `mapstructure:"placeholder-url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RetryMaxAttempts int           `mapstructure:"retry-max-attempts"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "search-evaluator scores search relevance of catalog items with a language model",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envBindings := map[string]string{
		"server.environment":     "ENVIRONMENT",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"ai.openai.api-key-file": "OPENAI_API_KEY_FILE",
		"image.api-key-file":     "UNSPLASH_ACCESS_KEY_FILE",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults(viper.GetViper())

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is search-evaluator.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.static-dir", "static")
	v.SetDefault("server.cors-origins", []string{"*"})
	v.SetDefault("server.read-timeout", 30*time.Second)
	v.SetDefault("server.write-timeout", 120*time.Second)

	v.SetDefault("ai.provider", ai.ProviderGemini)
	v.SetDefault("ai.max-log-length", 200)
	v.SetDefault("ai.gemini.model", gemini.DefaultModel)
	v.SetDefault("ai.openai.model", openai.DefaultModel)

	v.SetDefault("evaluation.batch-concurrency", 1)

	v.SetDefault("image.base-url", imagesearch.DefaultBaseURL)
	v.SetDefault("image.fallback-url", imagesearch.DefaultFallbackURL)
	v.SetDefault("image.placeholder-url", imagesearch.DefaultPlaceholderURL)
	v.SetDefault("image.timeout", 10*time.Second)
	v.SetDefault("image.retry-max-attempts", 2)
}

// initConfig reads the config file. Without --config a missing
// search-evaluator.yaml is fine: defaults and environment apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if config == nil {
		config = &Config{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.AI.OpenAI == nil {
		config.AI.OpenAI = &OpenAIConfig{}
	}
	if config.Evaluation == nil {
		config.Evaluation = &EvaluationConfig{}
	}
	if config.Image == nil {
		config.Image = &ImageConfig{}
	}

	return config, nil
}
