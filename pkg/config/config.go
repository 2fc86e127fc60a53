package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
)

type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Scraper ScraperConfig `yaml:"scraper"`
	Export  ExportConfig  `yaml:"export"`
	Server  ServerConfig  `yaml:"server"`
}

type LLMConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	APIKeyFile     string  `yaml:"api_key_file"`
	BaseURL        string  `yaml:"base_url"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	PromptTemplate string  `yaml:"prompt_template"`
}

type ScraperConfig struct {
	BaseURL       string        `yaml:"base_url"`
	QueryTemplate string        `yaml:"query_template"`
	ResultLimit   int           `yaml:"result_limit"`
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	Placeholder   string        `yaml:"placeholder"`
}

type ExportConfig struct {
	OutputDir     string `yaml:"output_dir"`
	AbstractsFile string `yaml:"abstracts_file"`
	DeckFile      string `yaml:"deck_file"`
	OverviewTitle string `yaml:"overview_title"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`
	DefaultTerms string `yaml:"default_terms"`
	ArtifactDir  string `yaml:"artifact_dir"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/readmit/config.yaml"),
			"/etc/readmit/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)

	if err := loadAPIKeyFile(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	if err := loadAPIKeyFile(config); err != nil {
		return nil, err
	}
	applyDefaults(config)
	return config, nil
}

// applyDefaults fills unset values. The API key is never defaulted.
func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = ProviderGoogleAI
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case ProviderOllama:
			config.LLM.Model = "mistral"
		default:
			config.LLM.Model = "gemini-1.5-flash"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2048
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.Provider == ProviderOllama && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Scraper.BaseURL == "" {
		config.Scraper.BaseURL = "https://pubmed.ncbi.nlm.nih.gov"
	}
	if config.Scraper.QueryTemplate == "" {
		config.Scraper.QueryTemplate = "reducing %s readmission"
	}
	if config.Scraper.ResultLimit == 0 {
		config.Scraper.ResultLimit = 3
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}
	if config.Scraper.Placeholder == "" {
		config.Scraper.Placeholder = "No abstract available."
	}

	if config.Export.OutputDir == "" {
		config.Export.OutputDir = "."
	}
	if config.Export.AbstractsFile == "" {
		config.Export.AbstractsFile = "pubmed_abstracts.pdf"
	}
	if config.Export.DeckFile == "" {
		config.Export.DeckFile = "readmission_summary_deck.pptx"
	}
	if config.Export.OverviewTitle == "" {
		config.Export.OverviewTitle = "Comprehensive Readmission Program"
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.DefaultTerms == "" {
		config.Server.DefaultTerms = "CHF, Sepsis, UTI, Kidney failure"
	}
	if config.Server.ArtifactDir == "" {
		config.Server.ArtifactDir = filepath.Join(os.TempDir(), "readmit")
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if addr := os.Getenv("READMIT_ADDR"); addr != "" {
		config.Server.Addr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
}

// loadAPIKeyFile reads llm.api_key_file when no key was given directly.
func loadAPIKeyFile(config *Config) error {
	if config.LLM.APIKey != "" || config.LLM.APIKeyFile == "" {
		return nil
	}
	data, err := os.ReadFile(config.LLM.APIKeyFile)
	if err != nil {
		return fmt.Errorf("error reading api key file: %w", err)
	}
	config.LLM.APIKey = strings.TrimSpace(string(data))
	return nil
}
