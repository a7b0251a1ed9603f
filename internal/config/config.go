package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gyeh/mrfscan/internal/model"
)

// Config holds all runtime configuration for a mrfscan run.
type Config struct {
	DSN         string
	LogFormat   string // "text" or "json"
	LogLevel    string
	DryRun      bool
	PayerFilter string // only run this payer when set

	Payers           []Payer
	BillingCodes     []string // nil disables the whitelist
	CodeTypes        []string // subset of AllCodeTypes to process
	MaxFilesPerPayer int

	Fetch    FetchConfig
	Resolver ResolverConfig
	Stream   StreamConfig
	Output   OutputConfig
}

// Payer is one configured payer index.
type Payer struct {
	Name     string `yaml:"name"`
	IndexURL string `yaml:"index_url"`
	// Handler names the payer strategy; defaults to Name.
	Handler string `yaml:"handler"`
}

// HandlerName returns the strategy to look up for the payer.
func (p Payer) HandlerName() string {
	if p.Handler != "" {
		return p.Handler
	}
	return p.Name
}

type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	UserAgent   string        `yaml:"user_agent"`
}

type ResolverConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type StreamConfig struct {
	ThresholdBytes        int64         `yaml:"threshold_bytes"`
	MemoryThresholdBytes  uint64        `yaml:"memory_threshold_bytes"`
	SampleEvery           int           `yaml:"sample_every"`
	FileBudget            time.Duration `yaml:"file_budget"`
	InitialProgressBudget time.Duration `yaml:"initial_progress_budget"`
	StallBudget           time.Duration `yaml:"stall_budget"`
}

type OutputConfig struct {
	Dir       string   `yaml:"dir"`
	BatchSize int      `yaml:"batch_size"`
	KeepLocal bool     `yaml:"keep_local"`
	S3        S3Config `yaml:"s3"`
}

// S3Config points at an S3 bucket or an S3-compatible endpoint such as R2.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"-"`
	AccessKeySecret string `yaml:"-"`
}

// Enabled reports whether uploads are configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// yamlConfig is the on-disk YAML structure.
type yamlConfig struct {
	Payers           []Payer        `yaml:"payers"`
	BillingCodes     []string       `yaml:"billing_codes"`
	BillingCodesFile string         `yaml:"billing_codes_file"`
	CodeTypes        []string       `yaml:"code_types"`
	MaxFilesPerPayer int            `yaml:"max_files_per_payer"`
	Fetch            FetchConfig    `yaml:"fetch"`
	Resolver         ResolverConfig `yaml:"resolver"`
	Stream           StreamConfig   `yaml:"stream"`
	Output           OutputConfig   `yaml:"output"`
	Database         struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
}

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// LoadFromFile reads a YAML config file and merges its values into Config.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	c.Payers = yc.Payers
	c.CodeTypes = yc.CodeTypes
	c.MaxFilesPerPayer = yc.MaxFilesPerPayer
	c.Fetch = yc.Fetch
	c.Resolver = yc.Resolver
	c.Stream = yc.Stream
	c.Output = yc.Output
	if c.DSN == "" {
		c.DSN = yc.Database.DSN
	}

	if yc.BillingCodes != nil || yc.BillingCodesFile != "" {
		c.BillingCodes = append([]string{}, yc.BillingCodes...)
	}
	if yc.BillingCodesFile != "" {
		f := yc.BillingCodesFile
		if !filepath.IsAbs(f) {
			f = filepath.Join(filepath.Dir(path), f)
		}
		codes, err := LoadBillingCodes(f)
		if err != nil {
			return err
		}
		c.BillingCodes = append(c.BillingCodes, codes...)
	}

	c.ApplyDefaults()
	return c.validate()
}

// LoadBillingCodes reads a whitelist file: one or more codes per line,
// separated by commas or whitespace. Lines starting with # are comments.
func LoadBillingCodes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open billing codes file: %w", err)
	}
	defer f.Close()

	codes := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, code := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			codes = append(codes, code)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read billing codes file: %w", err)
	}
	return codes, nil
}

// LoadEnv loads a .env file from the working directory when one exists.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// ApplyEnv fills unset values from the environment.
func (c *Config) ApplyEnv() {
	if c.DSN == "" {
		c.DSN = firstEnv("MRFSCAN_DSN", "DATABASE_URL")
	}
	s3 := &c.Output.S3
	if v := os.Getenv("S3_BUCKET"); v != "" && s3.Bucket == "" {
		s3.Bucket = v
	}
	if v := os.Getenv("R2_BUCKET_NAME"); v != "" && s3.Bucket == "" {
		s3.Bucket = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" && s3.Endpoint == "" {
		s3.Endpoint = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" && s3.Region == "" {
		s3.Region = v
	}
	if id := os.Getenv("R2_ACCOUNT_ID"); id != "" {
		if s3.Endpoint == "" {
			s3.Endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", id)
		}
		if s3.Region == "" {
			s3.Region = "auto"
		}
	}
	s3.AccessKeyID = os.Getenv("R2_ACCESS_KEY_ID")
	s3.AccessKeySecret = os.Getenv("R2_ACCESS_KEY_SECRET")
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 5 * time.Minute
	}
	if c.Fetch.MaxAttempts == 0 {
		c.Fetch.MaxAttempts = 3
	}
	if c.Resolver.Concurrency == 0 {
		c.Resolver.Concurrency = 10
	}
	if c.Resolver.Timeout == 0 {
		c.Resolver.Timeout = 30 * time.Second
	}
	if c.Resolver.MaxAttempts == 0 {
		c.Resolver.MaxAttempts = 3
	}
	if c.Stream.ThresholdBytes == 0 {
		c.Stream.ThresholdBytes = 10 << 20
	}
	if c.Stream.MemoryThresholdBytes == 0 {
		c.Stream.MemoryThresholdBytes = 1 << 30
	}
	if c.Stream.SampleEvery == 0 {
		c.Stream.SampleEvery = 1000
	}
	if c.Stream.FileBudget == 0 {
		c.Stream.FileBudget = 10 * time.Minute
	}
	if c.Stream.InitialProgressBudget == 0 {
		c.Stream.InitialProgressBudget = 60 * time.Second
	}
	if c.Stream.StallBudget == 0 {
		c.Stream.StallBudget = 180 * time.Second
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
	if c.Output.BatchSize == 0 {
		c.Output.BatchSize = 100_000
	}
}

func (c *Config) validate() error {
	if err := c.validateCodeTypes(); err != nil {
		return err
	}
	for i, p := range c.Payers {
		if p.Name == "" {
			return fmt.Errorf("payers[%d]: name is required", i)
		}
		if p.IndexURL == "" {
			return fmt.Errorf("payer %q: index_url is required", p.Name)
		}
	}
	switch {
	case c.Fetch.MaxAttempts < 1:
		return fmt.Errorf("fetch.max_attempts must be at least 1")
	case c.Resolver.Concurrency < 1:
		return fmt.Errorf("resolver.concurrency must be at least 1")
	case c.Resolver.MaxAttempts < 1:
		return fmt.Errorf("resolver.max_attempts must be at least 1")
	case c.Output.BatchSize < 1:
		return fmt.Errorf("output.batch_size must be at least 1")
	case c.MaxFilesPerPayer < 0:
		return fmt.Errorf("max_files_per_payer must not be negative")
	}
	return nil
}

// validateCodeTypes checks that every entry in CodeTypes is a known code type
// name and rewrites it to its canonical form. An empty list means all types.
func (c *Config) validateCodeTypes() error {
	for i, name := range c.CodeTypes {
		ct, ok := model.CodeTypeByName(name)
		if !ok {
			return fmt.Errorf("unknown code type %q in config", name)
		}
		c.CodeTypes[i] = ct.Name
	}
	return nil
}

// Validate checks what a run needs.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if len(c.Payers) == 0 {
		return fmt.Errorf("no payers configured")
	}
	if c.PayerFilter != "" && c.Payer(c.PayerFilter) == nil {
		return fmt.Errorf("payer %q is not configured", c.PayerFilter)
	}
	return nil
}

// ValidateWithDSN checks the run config and the DSN.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("--dsn, MRFSCAN_DSN or DATABASE_URL is required")
	}
	return nil
}

// Payer returns the configured payer with the given name, ignoring case.
func (c *Config) Payer(name string) *Payer {
	for i := range c.Payers {
		if strings.EqualFold(c.Payers[i].Name, name) {
			return &c.Payers[i]
		}
	}
	return nil
}

// SelectedPayers returns the payers a run processes.
func (c *Config) SelectedPayers() []Payer {
	if c.PayerFilter == "" {
		return c.Payers
	}
	if p := c.Payer(c.PayerFilter); p != nil {
		return []Payer{*p}
	}
	return nil
}
