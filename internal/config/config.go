package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"tradepipeline/internal/domain/entity/pipeline"
)

const (
	defaultEnv      = "development"
	defaultHTTPHost = "0.0.0.0"
	defaultStage    = stageAll

	defaultIntakePort    = 5000
	defaultPricingPort   = 5001
	defaultValuationPort = 5002
	defaultRiskPort      = 5003
	defaultCollectorPort = 5010

	defaultDownstreamTimeoutSeconds = 30

	defaultPricingTimeoutProbability   = 0.1
	defaultPricingMalformedProbability = 0.0
	defaultPricingTimeoutDelayMS       = 5000
	defaultPricingPerturbation         = 5.0
	defaultPricingLatencyMinMS         = 0
	defaultPricingLatencyMaxMS         = 0
	defaultValuationInconsistency      = 0.05

	defaultBasePrices      = "AAPL:150,GOOGL:2800,MSFT:300"
	defaultBasePrice       = "100"
	defaultBaseCosts       = "AAPL:140,GOOGL:2700,MSFT:280"
	defaultBaseCost        = "90"
	defaultLogDir          = "logs"
	defaultRedisDB         = 0
	defaultCacheTTLSeconds = 30
	defaultRecordsExchange = "pipeline.records"
	defaultPrefetch        = 50
	defaultBatchSize       = 100
	defaultBatchTimeoutMS  = 500
	stageAll               = "all"
)

// Config keeps the runtime configuration for the pipeline processes.
type Config struct {
	Env        string
	Stage      string
	HTTP       HTTPConfig
	Ports      PortsConfig
	Downstream DownstreamConfig
	Pricing    PricingConfig
	Valuation  ValuationConfig
	Faults     FaultConfig
	Log        LogConfig
	Redis      RedisConfig
	RabbitMQ   RabbitMQConfig
	Postgres   PostgresConfig
	Collector  CollectorConfig
	Cache      CacheConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr(port int) string {
	return fmt.Sprintf("%s:%d", h.Host, port)
}

// PortsConfig maps every stage to its listen port.
type PortsConfig struct {
	Intake    int
	Pricing   int
	Valuation int
	Risk      int
}

// For returns the port of stage.
func (p PortsConfig) For(stage pipeline.Stage) int {
	switch stage {
	case pipeline.StageIntake:
		return p.Intake
	case pipeline.StagePricing:
		return p.Pricing
	case pipeline.StageValuation:
		return p.Valuation
	case pipeline.StageRisk:
		return p.Risk
	}
	return 0
}

// DownstreamConfig locates the next hop of each stage.
type DownstreamConfig struct {
	PricingURL   string
	ValuationURL string
	RiskURL      string
	Timeout      time.Duration
}

// PricingConfig stores the price table.
type PricingConfig struct {
	BasePrices   map[string]decimal.Decimal
	DefaultPrice decimal.Decimal
	Perturbation float64
	// LatencyMin and LatencyMax bound a simulated compute delay. Both zero
	// disables it.
	LatencyMin time.Duration
	LatencyMax time.Duration
}

// ValuationConfig stores the cost basis table.
type ValuationConfig struct {
	Costs       map[string]decimal.Decimal
	DefaultCost decimal.Decimal
}

// FaultConfig stores fault injection probabilities.
type FaultConfig struct {
	PricingTimeout         float64
	PricingMalformed       float64
	PricingTimeoutDelay    time.Duration
	ValuationInconsistency float64
	Seed                   int64
}

// LogConfig stores where stage records are written.
type LogConfig struct {
	Dir string
}

// RedisConfig stores Redis connection parameters. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// RabbitMQConfig stores the records exchange settings. An empty URL disables
// record publishing.
type RabbitMQConfig struct {
	URL          string
	Exchange     string
	Queue        string
	Prefetch     int
	BatchSize    int
	BatchTimeout time.Duration
}

func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

// PostgresConfig stores database connection parameters.
type PostgresConfig struct {
	DSN string
}

// CollectorConfig stores the record collector settings.
type CollectorConfig struct {
	Port int
}

// CacheConfig stores cache behavior.
type CacheConfig struct {
	TTLSeconds int
}

// Stages returns the stages this process serves.
func (c *Config) Stages() []pipeline.Stage {
	if c.Stage == stageAll {
		return append([]pipeline.Stage(nil), pipeline.Stages...)
	}
	stage, err := pipeline.ParseStage(c.Stage)
	if err != nil {
		return nil
	}
	return []pipeline.Stage{stage}
}

// Load builds Config from environment variables. A .env file in the working
// directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	stage := strings.ToLower(getString("PIPELINE_STAGE", defaultStage))
	if stage != stageAll {
		if _, err := pipeline.ParseStage(stage); err != nil {
			return nil, fmt.Errorf("parse PIPELINE_STAGE: %w", err)
		}
	}

	var ports PortsConfig
	var err error
	if ports.Intake, err = getInt("INTAKE_PORT", defaultIntakePort); err != nil {
		return nil, err
	}
	if ports.Pricing, err = getInt("PRICING_PORT", defaultPricingPort); err != nil {
		return nil, err
	}
	if ports.Valuation, err = getInt("VALUATION_PORT", defaultValuationPort); err != nil {
		return nil, err
	}
	if ports.Risk, err = getInt("RISK_PORT", defaultRiskPort); err != nil {
		return nil, err
	}

	host := getString("HTTP_HOST", defaultHTTPHost)
	hopHost := host
	if hopHost == "0.0.0.0" || hopHost == "" {
		hopHost = "localhost"
	}

	downstreamSeconds, err := getInt("DOWNSTREAM_TIMEOUT_SECONDS", defaultDownstreamTimeoutSeconds)
	if err != nil {
		return nil, err
	}
	if downstreamSeconds <= 0 {
		return nil, fmt.Errorf("DOWNSTREAM_TIMEOUT_SECONDS must be positive, got %d", downstreamSeconds)
	}

	faults, err := loadFaults()
	if err != nil {
		return nil, err
	}

	basePrices, err := getTable("BASE_PRICES", defaultBasePrices)
	if err != nil {
		return nil, err
	}
	defaultPrice, err := getDecimal("DEFAULT_BASE_PRICE", defaultBasePrice)
	if err != nil {
		return nil, err
	}
	perturbation, err := getFloat("PRICING_PERTURBATION", defaultPricingPerturbation)
	if err != nil {
		return nil, err
	}
	if perturbation < 0 {
		return nil, fmt.Errorf("PRICING_PERTURBATION must not be negative, got %v", perturbation)
	}
	latencyMin, err := getMillis("PRICING_LATENCY_MIN_MS", defaultPricingLatencyMinMS)
	if err != nil {
		return nil, err
	}
	latencyMax, err := getMillis("PRICING_LATENCY_MAX_MS", defaultPricingLatencyMaxMS)
	if err != nil {
		return nil, err
	}
	if latencyMax < latencyMin {
		return nil, fmt.Errorf("PRICING_LATENCY_MAX_MS must not be below PRICING_LATENCY_MIN_MS, got %s < %s", latencyMax, latencyMin)
	}
	costs, err := getTable("BASE_COSTS", defaultBaseCosts)
	if err != nil {
		return nil, err
	}
	defaultCost, err := getDecimal("DEFAULT_BASE_COST", defaultBaseCost)
	if err != nil {
		return nil, err
	}

	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, err
	}
	prefetch, err := getInt("RABBITMQ_PREFETCH", defaultPrefetch)
	if err != nil {
		return nil, err
	}
	batchSize, err := getInt("RECORDS_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		return nil, err
	}
	batchTimeout, err := getMillis("RECORDS_BATCH_TIMEOUT_MS", defaultBatchTimeoutMS)
	if err != nil {
		return nil, err
	}
	collectorPort, err := getInt("COLLECTOR_PORT", defaultCollectorPort)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getInt("CACHE_TTL_SECONDS", defaultCacheTTLSeconds)
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:   getString("APP_ENV", defaultEnv),
		Stage: stage,
		HTTP:  HTTPConfig{Host: host},
		Ports: ports,
		Downstream: DownstreamConfig{
			PricingURL:   getString("PRICING_URL", fmt.Sprintf("http://%s:%d", hopHost, ports.Pricing)),
			ValuationURL: getString("VALUATION_URL", fmt.Sprintf("http://%s:%d", hopHost, ports.Valuation)),
			RiskURL:      getString("RISK_URL", fmt.Sprintf("http://%s:%d", hopHost, ports.Risk)),
			Timeout:      time.Duration(downstreamSeconds) * time.Second,
		},
		Pricing: PricingConfig{
			BasePrices:   basePrices,
			DefaultPrice: defaultPrice,
			Perturbation: perturbation,
			LatencyMin:   latencyMin,
			LatencyMax:   latencyMax,
		},
		Valuation: ValuationConfig{
			Costs:       costs,
			DefaultCost: defaultCost,
		},
		Faults: faults,
		Log:    LogConfig{Dir: getString("LOG_DIR", defaultLogDir)},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		RabbitMQ: RabbitMQConfig{
			URL:          os.Getenv("RABBITMQ_URL"),
			Exchange:     getString("RECORDS_EXCHANGE", defaultRecordsExchange),
			Queue:        os.Getenv("RABBITMQ_QUEUE"),
			Prefetch:     prefetch,
			BatchSize:    batchSize,
			BatchTimeout: batchTimeout,
		},
		Postgres:  PostgresConfig{DSN: os.Getenv("DATABASE_DSN")},
		Collector: CollectorConfig{Port: collectorPort},
		Cache:     CacheConfig{TTLSeconds: cacheTTL},
	}, nil
}

func loadFaults() (FaultConfig, error) {
	timeout, err := getProbability("PRICING_TIMEOUT_PROBABILITY", defaultPricingTimeoutProbability)
	if err != nil {
		return FaultConfig{}, err
	}
	malformed, err := getProbability("PRICING_MALFORMED_PROBABILITY", defaultPricingMalformedProbability)
	if err != nil {
		return FaultConfig{}, err
	}
	inconsistency, err := getProbability("VALUATION_INCONSISTENCY_PROBABILITY", defaultValuationInconsistency)
	if err != nil {
		return FaultConfig{}, err
	}
	delay, err := getMillis("PRICING_TIMEOUT_DELAY_MS", defaultPricingTimeoutDelayMS)
	if err != nil {
		return FaultConfig{}, err
	}
	seed, err := getInt64("FAULT_SEED", 0)
	if err != nil {
		return FaultConfig{}, err
	}
	return FaultConfig{
		PricingTimeout:         timeout,
		PricingMalformed:       malformed,
		PricingTimeoutDelay:    delay,
		ValuationInconsistency: inconsistency,
		Seed:                   seed,
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int64: %w", key, value, err)
	}
	return parsed, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to float: %w", key, value, err)
	}
	return parsed, nil
}

func getProbability(key string, fallback float64) (float64, error) {
	p, err := getFloat(key, fallback)
	if err != nil {
		return 0, err
	}
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("%s must be within [0,1], got %v", key, p)
	}
	return p, nil
}

func getMillis(key string, fallback int) (time.Duration, error) {
	ms, err := getInt(key, fallback)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	value := getString(key, fallback)
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("convert %s value %q to decimal: %w", key, value, err)
	}
	return parsed, nil
}

// getTable parses "SYM:value,SYM:value" into a lookup table.
func getTable(key, fallback string) (map[string]decimal.Decimal, error) {
	value := getString(key, fallback)
	table := make(map[string]decimal.Decimal)
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		symbol, raw, ok := strings.Cut(entry, ":")
		if !ok || strings.TrimSpace(symbol) == "" {
			return nil, fmt.Errorf("%s entry %q must be SYMBOL:value", key, entry)
		}
		parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s entry %q: %w", key, entry, err)
		}
		table[strings.TrimSpace(symbol)] = parsed
	}
	return table, nil
}

// TableString renders a table back into its env form with sorted keys.
func TableString(table map[string]decimal.Decimal) string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+table[k].String())
	}
	return strings.Join(parts, ",")
}
