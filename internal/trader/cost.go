package trader

// CostScenario is a named per-side transaction cost rate.
type CostScenario struct {
	Name        string
	PerSideRate float64
}

// ScenarioCost is the cost and net result of one trade under one scenario.
type ScenarioCost struct {
	Scenario string
	CostR    float64
	NetR     float64
}

// CostedTrade is a gross trade with one ScenarioCost per scenario, in
// scenario order.
type CostedTrade struct {
	Trade
	Costs []ScenarioCost
}

// CostR is the round-trip cost of the trade in R: rate*(entry+exit)/ATR.
// It is zero when the ATR is not positive.
func CostR(t Trade, s CostScenario) float64 {
	if t.ATR <= 0 {
		return 0
	}
	return s.PerSideRate * (t.EntryPrice + t.ExitPrice) / t.ATR
}

// ApplyCosts returns new records carrying every scenario's cost. The input
// trades are not modified.
func ApplyCosts(trades []Trade, scenarios []CostScenario) []CostedTrade {
	out := make([]CostedTrade, len(trades))
	for i, t := range trades {
		costs := make([]ScenarioCost, len(scenarios))
		for j, s := range scenarios {
			c := CostR(t, s)
			costs[j] = ScenarioCost{Scenario: s.Name, CostR: c, NetR: t.FinalR - c}
		}
		out[i] = CostedTrade{Trade: t, Costs: costs}
	}
	return out
}
