package config

import (
	"errors"
	"fmt"
	"strings"

	"ofi-factor-lab/internal/factor"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger     Logger     `mapstructure:"logger" yaml:"logger"`
	Database   Database   `mapstructure:"database" yaml:"database"`
	Server     Server     `mapstructure:"server" yaml:"server"`
	Binance    Binance    `mapstructure:"binance" yaml:"binance"`
	Ticks      Ticks      `mapstructure:"ticks" yaml:"ticks"`
	ClickHouse ClickHouse `mapstructure:"clickhouse" yaml:"clickhouse"`
	Factor     Factor     `mapstructure:"factor" yaml:"factor"`
	TradePath  TradePath  `mapstructure:"trade_path" yaml:"trade_path"`
	Sweep      Sweep      `mapstructure:"sweep" yaml:"sweep"`
	Output     Output     `mapstructure:"output" yaml:"output"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"` // optional rotating log file
}

// Database holds the configuration for the results database.
type Database struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// Server holds the configuration for the status server. Port 0 disables it.
type Server struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// Binance holds the configuration for the historical trade backfill client.
type Binance struct {
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	Testnet        bool    `mapstructure:"testnet" yaml:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	MaxRetries     int     `mapstructure:"max_retries" yaml:"max_retries"`
}

// Ticks selects where tick batches are loaded from.
type Ticks struct {
	Source    string `mapstructure:"source" yaml:"source"` // "store" or "clickhouse"
	Dir       string `mapstructure:"dir" yaml:"dir"`
	StartDate string `mapstructure:"start_date" yaml:"start_date"`
	EndDate   string `mapstructure:"end_date" yaml:"end_date"`
	Cache     bool   `mapstructure:"cache" yaml:"cache"`
}

// ClickHouse holds connection settings for the ClickHouse tick source.
type ClickHouse struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	Table    string `mapstructure:"table" yaml:"table"`
}

// Factor holds the bar/standardization settings.
type Factor struct {
	Window  int     `mapstructure:"window" yaml:"window"`
	Epsilon float64 `mapstructure:"epsilon" yaml:"epsilon"`
}

// TradePath holds the simulator settings shared by every parameter combination.
type TradePath struct {
	EntryMode     string  `mapstructure:"entry_mode" yaml:"entry_mode"`         // "trend" or "reversal"
	ThresholdMode string  `mapstructure:"threshold_mode" yaml:"threshold_mode"` // "global" or "expanding"
	MinHistory    int     `mapstructure:"min_history" yaml:"min_history"`
	ATRPeriod     int     `mapstructure:"atr_period" yaml:"atr_period"`
	ATRMethod     string  `mapstructure:"atr_method" yaml:"atr_method"` // "rolling_mean" or "ema"
	PositionSize  float64 `mapstructure:"position_size" yaml:"position_size"`
	SavePaths     bool    `mapstructure:"save_paths" yaml:"save_paths"`
}

// CostScenario is a named per-side transaction cost rate.
type CostScenario struct {
	Name        string  `mapstructure:"name" yaml:"name"`
	PerSideRate float64 `mapstructure:"per_side_rate" yaml:"per_side_rate"`
}

// Sweep holds the parameter grid and the units it runs over.
type Sweep struct {
	Symbols          []string       `mapstructure:"symbols" yaml:"symbols"`
	Timeframes       []string       `mapstructure:"timeframes" yaml:"timeframes"`
	QuantileSets     [][]float64    `mapstructure:"quantile_sets" yaml:"quantile_sets"` // [q_high, q_low]
	HMaxCandidates   []int          `mapstructure:"hmax_candidates" yaml:"hmax_candidates"`
	TakeProfitLevels []float64      `mapstructure:"take_profit_levels" yaml:"take_profit_levels"` // <= 0 means no take-profit
	CostScenarios    []CostScenario `mapstructure:"cost_scenarios" yaml:"cost_scenarios"`
	Workers          int            `mapstructure:"workers" yaml:"workers"`
	ComboWorkers     int            `mapstructure:"combo_workers" yaml:"combo_workers"`
}

// Output controls which tables are written and where.
type Output struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	WriteBars   bool   `mapstructure:"write_bars" yaml:"write_bars"`
	WriteTrades bool   `mapstructure:"write_trades" yaml:"write_trades"`
	TopN        int    `mapstructure:"top_n" yaml:"top_n"`
	// RankScenario ranks the console summary by this cost scenario's net R;
	// empty ranks by gross R.
	RankScenario string `mapstructure:"rank_scenario" yaml:"rank_scenario"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	// A missing .env file is fine; it only supplies secrets.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		return
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("database.dsn", "ofilab.db")

	v.SetDefault("binance.rate_limit", 10) // requests per second
	v.SetDefault("binance.rate_limit_burst", 5)
	v.SetDefault("binance.max_retries", 5)

	v.SetDefault("ticks.source", "store")
	v.SetDefault("ticks.dir", "data/ticks")
	v.SetDefault("ticks.cache", true)

	v.SetDefault("clickhouse.host", "localhost")
	v.SetDefault("clickhouse.port", 9000)
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("clickhouse.username", "default")
	v.SetDefault("clickhouse.table", "market_ticks")

	v.SetDefault("factor.window", 200)
	v.SetDefault("factor.epsilon", 1e-8)

	v.SetDefault("trade_path.entry_mode", "trend")
	v.SetDefault("trade_path.threshold_mode", "global")
	v.SetDefault("trade_path.min_history", 20)
	v.SetDefault("trade_path.atr_period", 20)
	v.SetDefault("trade_path.atr_method", "rolling_mean")
	v.SetDefault("trade_path.position_size", 1.0)

	v.SetDefault("sweep.quantile_sets", [][]float64{{0.8, 0.2}})
	v.SetDefault("sweep.hmax_candidates", []int{150})
	v.SetDefault("sweep.take_profit_levels", []float64{0})
	v.SetDefault("sweep.workers", 4)
	v.SetDefault("sweep.combo_workers", 4)

	v.SetDefault("output.dir", "results")
	v.SetDefault("output.write_bars", true)
	v.SetDefault("output.top_n", 10)
}

// Validate checks the settings the pipeline cannot recover from.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Sweep.Symbols) == 0 {
		errs = append(errs, errors.New("sweep.symbols is empty"))
	}
	if len(c.Sweep.Timeframes) == 0 {
		errs = append(errs, errors.New("sweep.timeframes is empty"))
	}
	for _, tf := range c.Sweep.Timeframes {
		if _, err := factor.ParseTimeframe(tf); err != nil {
			errs = append(errs, fmt.Errorf("sweep.timeframes: %w", err))
		}
	}
	if c.Factor.Window < 2 {
		errs = append(errs, fmt.Errorf("factor.window must be >= 2, got %d", c.Factor.Window))
	}
	if c.Factor.Epsilon <= 0 {
		errs = append(errs, fmt.Errorf("factor.epsilon must be > 0, got %g", c.Factor.Epsilon))
	}
	switch c.Ticks.Source {
	case "", "store", "clickhouse":
	default:
		errs = append(errs, fmt.Errorf("ticks.source must be store or clickhouse, got %q", c.Ticks.Source))
	}
	switch c.TradePath.EntryMode {
	case "trend", "reversal":
	default:
		errs = append(errs, fmt.Errorf("trade_path.entry_mode must be trend or reversal, got %q", c.TradePath.EntryMode))
	}
	switch c.TradePath.ThresholdMode {
	case "", "global", "expanding":
	default:
		errs = append(errs, fmt.Errorf("trade_path.threshold_mode must be global or expanding, got %q", c.TradePath.ThresholdMode))
	}
	switch c.TradePath.ATRMethod {
	case factor.ATRRollingMean, factor.ATREMA:
	default:
		errs = append(errs, fmt.Errorf("trade_path.atr_method must be %s or %s, got %q",
			factor.ATRRollingMean, factor.ATREMA, c.TradePath.ATRMethod))
	}
	if c.TradePath.ATRPeriod < 1 {
		errs = append(errs, fmt.Errorf("trade_path.atr_period must be >= 1, got %d", c.TradePath.ATRPeriod))
	}
	// Combo IDs carry quantiles at two decimals; distinct pairs must not share one.
	labels := make(map[string][2]float64, len(c.Sweep.QuantileSets))
	for i, qs := range c.Sweep.QuantileSets {
		if len(qs) != 2 {
			errs = append(errs, fmt.Errorf("sweep.quantile_sets[%d] must be [q_high, q_low]", i))
			continue
		}
		qHigh, qLow := qs[0], qs[1]
		if !(qLow > 0 && qLow < qHigh && qHigh < 1) {
			errs = append(errs, fmt.Errorf("sweep.quantile_sets[%d]: need 0 < q_low < q_high < 1, got [%g, %g]", i, qHigh, qLow))
		}
		label := fmt.Sprintf("qh%.2f_ql%.2f", qHigh, qLow)
		if prev, dup := labels[label]; dup && prev != [2]float64{qHigh, qLow} {
			errs = append(errs, fmt.Errorf("sweep.quantile_sets[%d] [%g, %g] and [%g, %g] share the combo label %s",
				i, qHigh, qLow, prev[0], prev[1], label))
			continue
		}
		labels[label] = [2]float64{qHigh, qLow}
	}
	if len(c.Sweep.HMaxCandidates) == 0 {
		errs = append(errs, errors.New("sweep.hmax_candidates is empty"))
	}
	for i, h := range c.Sweep.HMaxCandidates {
		if h < 1 {
			errs = append(errs, fmt.Errorf("sweep.hmax_candidates[%d] must be >= 1, got %d", i, h))
		}
	}
	seen := make(map[string]struct{}, len(c.Sweep.CostScenarios))
	for i, sc := range c.Sweep.CostScenarios {
		if sc.Name == "" {
			errs = append(errs, fmt.Errorf("sweep.cost_scenarios[%d] has no name", i))
		}
		if _, dup := seen[sc.Name]; dup {
			errs = append(errs, fmt.Errorf("sweep.cost_scenarios: duplicate name %q", sc.Name))
		}
		seen[sc.Name] = struct{}{}
		if sc.PerSideRate < 0 {
			errs = append(errs, fmt.Errorf("sweep.cost_scenarios[%d] per_side_rate must be >= 0", i))
		}
	}

	if c.Output.RankScenario != "" {
		if _, ok := seen[c.Output.RankScenario]; !ok {
			errs = append(errs, fmt.Errorf("output.rank_scenario %q is not a configured cost scenario", c.Output.RankScenario))
		}
	}

	return errors.Join(errs...)
}
