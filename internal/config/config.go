package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	oaiBaseURLEnv     = "OAI_BASE_URL"
	oaiSetEnv         = "OAI_SET"
	contentBaseURLEnv = "CONTENT_BASE_URL"
	vocabularyFileEnv = "VOCABULARY_FILE"
	outputDirEnv      = "OUTPUT_DIR"
)

// Duration wraps time.Duration so config files can use values like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds all settings for one harvest run. Everything is fixed at
// startup; there is no runtime reconfiguration.
type Config struct {
	OAI        OAIConfig       `yaml:"oai"`
	Content    ContentConfig   `yaml:"content"`
	Selection  SelectionConfig `yaml:"selection"`
	Vocabulary string          `yaml:"vocabulary"`
	Output     OutputConfig    `yaml:"output"`
	Fetch      FetchConfig     `yaml:"fetch"`
}

// OAIConfig describes the metadata repository endpoint.
type OAIConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	Set            string `yaml:"set"`
	MetadataPrefix string `yaml:"metadataPrefix"`
}

// ContentConfig describes the content-delivery endpoint serving OCR archives
// and METS/MODS documents.
type ContentConfig struct {
	BaseURL string `yaml:"baseUrl"`
}

// SelectionConfig bounds the harvest: publication-year window, per-genre cap
// and the global download cap.
type SelectionConfig struct {
	MaxDownloads int `yaml:"maxDownloads"`
	MaxPerGenre  int `yaml:"maxPerGenre"`
	MinYear      int `yaml:"minYear"`
	MaxYear      int `yaml:"maxYear"`
}

// OutputConfig roots the on-disk layout. All artifact paths derive from Dir.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

func (o OutputConfig) ZipDir() string        { return filepath.Join(o.Dir, "ocr_zips") }
func (o OutputConfig) UnzipDir() string      { return filepath.Join(o.Dir, "ocr_unzipped") }
func (o OutputConfig) TextDir() string       { return filepath.Join(o.Dir, "ocr_texts") }
func (o OutputConfig) DatasetPath() string   { return filepath.Join(o.Dir, "ocr_metadata.csv") }
func (o OutputConfig) TitleLogPath() string  { return filepath.Join(o.Dir, "ocr_titles.txt") }
func (o OutputConfig) RejectLogPath() string { return filepath.Join(o.Dir, "rejected_identifiers.txt") }

// FetchConfig carries separate tuning for the two network clients: the
// metadata client (OAI listing + METS/MODS) and the archive client (OCR zips).
type FetchConfig struct {
	Metadata ClientConfig `yaml:"metadata"`
	Archive  ClientConfig `yaml:"archive"`
}

// ClientConfig tunes one HTTP client.
type ClientConfig struct {
	ConnectTimeout Duration `yaml:"connectTimeout"`
	Timeout        Duration `yaml:"timeout"`
	Attempts       int      `yaml:"attempts"`
	Delay          Duration `yaml:"delay"`
}

func defaultConfig() Config {
	return Config{
		OAI: OAIConfig{
			BaseURL:        "https://oai.sbb.berlin/",
			Set:            "17.Jahrhundert",
			MetadataPrefix: "oai_dc",
		},
		Content: ContentConfig{
			BaseURL: "https://content.staatsbibliothek-berlin.de",
		},
		Selection: SelectionConfig{
			MaxDownloads: 3000,
			MaxPerGenre:  300,
			MinYear:      1651,
			MaxYear:      1700,
		},
		Output: OutputConfig{
			Dir: "./harvest",
		},
		Fetch: FetchConfig{
			Metadata: ClientConfig{
				ConnectTimeout: Duration(120 * time.Second),
				Timeout:        Duration(180 * time.Second),
				Attempts:       3,
				Delay:          Duration(5 * time.Second),
			},
			Archive: ClientConfig{
				ConnectTimeout: Duration(30 * time.Second),
				Timeout:        Duration(300 * time.Second),
				Attempts:       3,
				Delay:          Duration(10 * time.Second),
			},
		},
	}
}

// Load reads YAML configuration from path (optional, "" skips the file) and
// applies environment overrides on top of the built-in defaults.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(oaiBaseURLEnv); v != "" {
		c.OAI.BaseURL = v
	}
	if v := os.Getenv(oaiSetEnv); v != "" {
		c.OAI.Set = v
	}
	if v := os.Getenv(contentBaseURLEnv); v != "" {
		c.Content.BaseURL = v
	}
	if v := os.Getenv(vocabularyFileEnv); v != "" {
		c.Vocabulary = v
	}
	if v := os.Getenv(outputDirEnv); v != "" {
		c.Output.Dir = v
	}
}

// Validate reports configuration errors that must abort startup.
func (c Config) Validate() error {
	if c.OAI.BaseURL == "" {
		return fmt.Errorf("oai base URL is required")
	}
	if c.Content.BaseURL == "" {
		return fmt.Errorf("content base URL is required")
	}
	if c.Vocabulary == "" {
		return fmt.Errorf("vocabulary file is required")
	}
	if c.Selection.MinYear > c.Selection.MaxYear {
		return fmt.Errorf("invalid year window [%d, %d]", c.Selection.MinYear, c.Selection.MaxYear)
	}
	return nil
}
