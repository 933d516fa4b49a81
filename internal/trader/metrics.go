package trader

import "math"

// MetricsVersion identifies the layout of TradeStats and ComboMetrics.
// Bump it when a field is added, removed or changes meaning.
const MetricsVersion = 2

// TradeStats summarizes the gross trades of one simulation run.
type TradeStats struct {
	Version int

	NTrades int
	NLong   int
	NShort  int

	MeanR   float64
	MedianR float64
	StdR    float64
	MinR    float64
	MaxR    float64

	WinRate  float64
	AvgWinR  float64
	AvgLossR float64

	MeanMFER   float64
	MedianMFER float64
	MeanMAER   float64
	MedianMAER float64

	MeanBarsHeld   float64
	MedianBarsHeld float64
	MeanTMFE       float64
	MedianTMFE     float64

	PctStop      float64
	PctTPHit     float64
	PctHMax      float64
	PctEndOfData float64

	ExpectancyR float64
	SharpeR     float64
}

// ScenarioMetrics holds the net results of a combo under one cost scenario.
type ScenarioMetrics struct {
	Scenario    string
	PerSideRate float64
	MeanCostR   float64
	MeanNetR    float64
	MedianNetR  float64
	StdNetR     float64
	SharpeNetR  float64
	WinRateNet  float64
}

// LegMetrics is the gross performance of the long or short trades of a combo.
type LegMetrics struct {
	NTrades    int
	MeanRGross float64
	SharpeR    float64
	WinRate    float64
	MedianMFER float64
	MedianMAER float64
	PctStop    float64
	PctTPHit   float64
}

// ComboMetrics is the performance record of one parameter combination.
// Undefined values are NaN.
type ComboMetrics struct {
	Version int

	NTrades int
	NLong   int
	NShort  int

	MeanRGross   float64
	MedianRGross float64
	StdRGross    float64
	SharpeRGross float64
	WinRateGross float64

	Scenarios []ScenarioMetrics

	MedianMFER float64
	P75MFER    float64
	P90MFER    float64
	MedianMAER float64

	MedianBarsHeld float64
	MeanBarsHeld   float64

	PctStop      float64
	PctTPHit     float64
	PctHMax      float64
	PctEndOfData float64

	Long  LegMetrics
	Short LegMetrics
}

type tradeColumns struct {
	finalR   []float64
	mfeR     []float64
	maeR     []float64
	barsHeld []float64
	tMFE     []float64
	nLong    int
	nShort   int
}

func columns(trades []Trade) tradeColumns {
	c := tradeColumns{
		finalR:   make([]float64, len(trades)),
		mfeR:     make([]float64, len(trades)),
		maeR:     make([]float64, len(trades)),
		barsHeld: make([]float64, len(trades)),
		tMFE:     make([]float64, len(trades)),
	}
	for i, t := range trades {
		c.finalR[i] = t.FinalR
		c.mfeR[i] = t.MFER
		c.maeR[i] = t.MAER
		c.barsHeld[i] = float64(t.BarsHeld)
		c.tMFE[i] = float64(t.TMFE)
		if t.Direction > 0 {
			c.nLong++
		} else {
			c.nShort++
		}
	}
	return c
}

func exitShare(trades []Trade, reason ExitReason) float64 {
	return share(trades, func(t Trade) bool { return t.ExitReason == reason })
}

// ComputeTradeStats summarizes gross trades.
func ComputeTradeStats(trades []Trade) TradeStats {
	c := columns(trades)
	nan := math.NaN()
	s := TradeStats{
		Version: MetricsVersion,
		NTrades: len(trades),
		NLong:   c.nLong,
		NShort:  c.nShort,
		MinR:    nan,
		MaxR:    nan,
	}

	s.MeanR = mean(c.finalR)
	s.MedianR = median(c.finalR)
	s.StdR = sampleStd(c.finalR)
	for i, r := range c.finalR {
		if i == 0 || r < s.MinR {
			s.MinR = r
		}
		if i == 0 || r > s.MaxR {
			s.MaxR = r
		}
	}

	var wins, losses []float64
	for _, r := range c.finalR {
		if r > 0 {
			wins = append(wins, r)
		} else {
			losses = append(losses, r)
		}
	}
	s.WinRate = share(c.finalR, func(r float64) bool { return r > 0 })
	s.AvgWinR = mean(wins)
	s.AvgLossR = mean(losses)

	s.MeanMFER = mean(c.mfeR)
	s.MedianMFER = median(c.mfeR)
	s.MeanMAER = mean(c.maeR)
	s.MedianMAER = median(c.maeR)

	s.MeanBarsHeld = mean(c.barsHeld)
	s.MedianBarsHeld = median(c.barsHeld)
	s.MeanTMFE = mean(c.tMFE)
	s.MedianTMFE = median(c.tMFE)

	s.PctStop = exitShare(trades, ExitStop)
	s.PctTPHit = exitShare(trades, ExitTakeProfit)
	s.PctHMax = exitShare(trades, ExitHMax)
	s.PctEndOfData = exitShare(trades, ExitEndOfData)

	s.ExpectancyR = s.MeanR
	s.SharpeR = sharpe(c.finalR)
	return s
}

// ComputeComboMetrics builds the combo record from cost-adjusted trades.
// scenarios must be the ones the trades were costed with, in the same order.
func ComputeComboMetrics(trades []CostedTrade, scenarios []CostScenario) ComboMetrics {
	gross := make([]Trade, len(trades))
	for i, t := range trades {
		gross[i] = t.Trade
	}
	c := columns(gross)

	m := ComboMetrics{
		Version: MetricsVersion,
		NTrades: len(trades),
		NLong:   c.nLong,
		NShort:  c.nShort,

		MeanRGross:   mean(c.finalR),
		MedianRGross: median(c.finalR),
		StdRGross:    sampleStd(c.finalR),
		SharpeRGross: sharpe(c.finalR),
		WinRateGross: share(c.finalR, func(r float64) bool { return r > 0 }),

		MedianMFER: median(c.mfeR),
		P75MFER:    quantile(c.mfeR, 0.75),
		P90MFER:    quantile(c.mfeR, 0.90),
		MedianMAER: median(c.maeR),

		MedianBarsHeld: median(c.barsHeld),
		MeanBarsHeld:   mean(c.barsHeld),

		PctStop:      exitShare(gross, ExitStop),
		PctTPHit:     exitShare(gross, ExitTakeProfit),
		PctHMax:      exitShare(gross, ExitHMax),
		PctEndOfData: exitShare(gross, ExitEndOfData),
	}

	var long, short []Trade
	for _, t := range gross {
		if t.Direction > 0 {
			long = append(long, t)
		} else {
			short = append(short, t)
		}
	}
	m.Long, m.Short = computeLeg(long), computeLeg(short)

	m.Scenarios = make([]ScenarioMetrics, len(scenarios))
	for j, sc := range scenarios {
		costs := make([]float64, len(trades))
		net := make([]float64, len(trades))
		for i, t := range trades {
			costs[i] = t.Costs[j].CostR
			net[i] = t.Costs[j].NetR
		}
		m.Scenarios[j] = ScenarioMetrics{
			Scenario:    sc.Name,
			PerSideRate: sc.PerSideRate,
			MeanCostR:   mean(costs),
			MeanNetR:    mean(net),
			MedianNetR:  median(net),
			StdNetR:     sampleStd(net),
			SharpeNetR:  sharpe(net),
			WinRateNet:  share(net, func(r float64) bool { return r > 0 }),
		}
	}
	return m
}

func computeLeg(trades []Trade) LegMetrics {
	c := columns(trades)
	return LegMetrics{
		NTrades:    len(trades),
		MeanRGross: mean(c.finalR),
		SharpeR:    sharpe(c.finalR),
		WinRate:    share(c.finalR, func(r float64) bool { return r > 0 }),
		MedianMFER: median(c.mfeR),
		MedianMAER: median(c.maeR),
		PctStop:    exitShare(trades, ExitStop),
		PctTPHit:   exitShare(trades, ExitTakeProfit),
	}
}

// Scenario returns the metrics of the named scenario.
func (m ComboMetrics) Scenario(name string) (ScenarioMetrics, bool) {
	for _, s := range m.Scenarios {
		if s.Scenario == name {
			return s, true
		}
	}
	return ScenarioMetrics{}, false
}
