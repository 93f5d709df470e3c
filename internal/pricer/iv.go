package pricer

// vixAdjustments scales the VIX (an SPX index vol) to a per-symbol
// implied volatility. Unlisted symbols use defaultVIXAdjustment.
var vixAdjustments = map[string]float64{
	"SPY": 1.0,
	"QQQ": 1.2,
	"IWM": 1.3,
	"DIA": 0.9,
}

const (
	defaultVIXAdjustment = 1.1
	fallbackIV           = 0.20
)

// EstimateIV derives an implied volatility for symbol and caches it.
// A positive vix (quoted in points, e.g. 18.5) takes priority; otherwise
// a positive historical volatility (as a decimal) is used directly; with
// neither available the estimate falls back to 20%.
func (p *Pricer) EstimateIV(symbol string, vix, historicalVol float64) float64 {
	var iv float64
	switch {
	case vix > 0:
		adj, ok := vixAdjustments[symbol]
		if !ok {
			adj = defaultVIXAdjustment
		}
		iv = vix / 100 * adj
	case historicalVol > 0:
		iv = historicalVol
	default:
		iv = fallbackIV
	}

	p.mu.Lock()
	p.ivCache[symbol] = iv
	p.mu.Unlock()
	return iv
}

// CachedIV returns the most recent IV estimate for symbol, if any.
func (p *Pricer) CachedIV(symbol string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	iv, ok := p.ivCache[symbol]
	return iv, ok
}
