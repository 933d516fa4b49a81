package models

import "gorm.io/gorm"

// ComboResult is the gross performance of one parameter combo on one unit.
// Undefined metrics are stored as NULL.
type ComboResult struct {
	gorm.Model
	RunID     string `gorm:"index:idx_run_unit;not null" json:"run_id"`
	Symbol    string `gorm:"index:idx_run_unit" json:"symbol"`
	Timeframe string `gorm:"index:idx_run_unit" json:"timeframe"`
	ComboID   string `gorm:"not null" json:"combo_id"`

	QHigh       float64  `json:"q_high"`
	QLow        float64  `json:"q_low"`
	HMax        int      `json:"hmax"`
	TakeProfitR *float64 `json:"tp_r"`

	MetricsVersion int `json:"metrics_version"`
	NTrades        int `json:"n_trades"`
	NLong          int `json:"n_long"`
	NShort         int `json:"n_short"`

	MeanRGross     *float64 `json:"mean_r_gross"`
	MedianRGross   *float64 `json:"median_r_gross"`
	StdRGross      *float64 `json:"std_r_gross"`
	SharpeRGross   *float64 `json:"sharpe_r_gross"`
	WinRateGross   *float64 `json:"win_rate_gross"`
	MedianMFER     *float64 `json:"median_mfe_r"`
	P75MFER        *float64 `json:"p75_mfe_r"`
	P90MFER        *float64 `json:"p90_mfe_r"`
	MedianMAER     *float64 `json:"median_mae_r"`
	MedianBarsHeld *float64 `json:"median_bars_held"`
	MeanBarsHeld   *float64 `json:"mean_bars_held"`
	PctStop        *float64 `json:"pct_stop"`
	PctTPHit       *float64 `json:"pct_tp_hit"`
	PctHMax        *float64 `json:"pct_hmax"`
	PctEndOfData   *float64 `json:"pct_end_of_data"`

	NTradesLong  int      `json:"n_trades_long"`
	MeanRLong    *float64 `json:"mean_r_long"`
	WinRateLong  *float64 `json:"win_rate_long"`
	NTradesShort int      `json:"n_trades_short"`
	MeanRShort   *float64 `json:"mean_r_short"`
	WinRateShort *float64 `json:"win_rate_short"`

	Costs []ComboCost `json:"costs"`
}

// ComboCost is the net performance of a combo under one cost scenario.
type ComboCost struct {
	gorm.Model
	ComboResultID uint     `gorm:"index;not null" json:"-"`
	Scenario      string   `gorm:"index" json:"scenario"`
	PerSideRate   float64  `json:"per_side_rate"`
	MeanCostR     *float64 `json:"mean_cost_r"`
	MeanNetR      *float64 `json:"mean_net_r"`
	MedianNetR    *float64 `json:"median_net_r"`
	StdNetR       *float64 `json:"std_net_r"`
	SharpeNetR    *float64 `json:"sharpe_net_r"`
	WinRateNet    *float64 `json:"win_rate_net"`
}
