package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/leonwooster/StockPlatform1-sub001/internal/cache"
	"github.com/leonwooster/StockPlatform1-sub001/internal/config"
	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/leonwooster/StockPlatform1-sub001/internal/ratelimit"
)

// PremiumVariant integrates an Alpha-Vantage-style API-keyed backend, per
// SPEC_FULL.md §6. Field names use ordinal-prefixed keys such as
// "01. symbol", "05. price"; every call carries apikey as a query param.
type PremiumVariant struct {
	baseURL  string
	apiKey   string
	http     *httpPipeline
	limiter  *ratelimit.Limiter
	cache    cache.Cache
	hotTTL   config.CacheTTLs
	staleTTL config.CacheTTLs
}

// NewPremium constructs the premium variant. apiKey is expected to have
// already passed secrets.ValidateAPIKey; the caller disables this variant
// entirely rather than constructing it with a bad key.
func NewPremium(cfg config.ProviderConfig, apiKey string, hotTTL, staleTTL config.CacheTTLs, store cache.Cache) *PremiumVariant {
	return &PremiumVariant{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   apiKey,
		http:     newHTTPPipeline("premium", cfg.RequestTimeout(), cfg.MaxRetries),
		limiter:  ratelimit.New("premium", cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerDay),
		cache:    store,
		hotTTL:   hotTTL,
		staleTTL: staleTTL,
	}
}

func (p *PremiumVariant) Tag() Tag     { return TagPremium }
func (p *PremiumVariant) Name() string { return "Premium" }

// RateLimitStatus exposes the variant's rate-limiter read-out so the
// facade and CostOptimized strategy can factor remaining quota into
// selection without reaching into the limiter directly.
func (p *PremiumVariant) RateLimitStatus() domain.RateLimitStatus { return p.limiter.Status() }

func (p *PremiumVariant) IsHealthy(ctx context.Context) error {
	_, err := p.http.get(ctx, p.Name(), "", p.query("GLOBAL_QUOTE", map[string]string{"symbol": "AAPL"}))
	if err != nil {
		if domain.IsKind(err, domain.ErrRateLimitExceeded) {
			return nil
		}
		return err
	}
	return nil
}

func (p *PremiumVariant) query(function string, extra map[string]string) string {
	v := url.Values{}
	v.Set("function", function)
	v.Set("apikey", p.apiKey)
	for k, val := range extra {
		v.Set(k, val)
	}
	return fmt.Sprintf("%s/query?%s", p.baseURL, v.Encode())
}

// envelope captures the error/info fields Alpha-Vantage-style APIs embed
// inside an otherwise-200 response, alongside the raw payload for
// function-specific parsing.
type envelope struct {
	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
}

func (p *PremiumVariant) classify(symbol string, body []byte) error {
	var env envelope
	_ = json.Unmarshal(body, &env)
	if class := classifyEnvelope(env.ErrorMessage, env.Note, env.Information); class != classNone {
		return classifiedError(p.Name(), symbol, class)
	}
	return nil
}

// --- quote -----------------------------------------------------------------

type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
}

func (p *PremiumVariant) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	cacheKey := "premium:quote:" + symbol
	staleKey := "stale:" + cacheKey

	if raw, ok := p.cache.Get(cacheKey); ok {
		var q domain.Quote
		if err := json.Unmarshal(raw, &q); err == nil {
			return q, nil
		}
	}
	if !acquireLimiter(ctx, p.limiter) {
		if stale, ok := p.cache.Get(staleKey); ok {
			var q domain.Quote
			if err := json.Unmarshal(stale, &q); err == nil {
				return q, nil
			}
		}
		return domain.Quote{}, domain.NewRateLimitExceeded(p.Name(), symbol, p.limiter.Status().MinuteResetIn)
	}
	p.limiter.Pace(ctx)

	body, err := p.http.get(ctx, p.Name(), symbol, p.query("GLOBAL_QUOTE", map[string]string{"symbol": symbol}))
	if err != nil {
		return domain.Quote{}, err
	}
	if classErr := p.classify(symbol, body); classErr != nil {
		return domain.Quote{}, classErr
	}

	var parsed globalQuoteResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return domain.Quote{}, domain.NewAPIUnavailable(p.Name(), symbol, "malformed quote response", jsonErr)
	}
	fields := parsed.GlobalQuote
	if len(fields) == 0 {
		return domain.Quote{}, domain.NewSymbolNotFound(p.Name(), symbol)
	}

	price := tolerantFloat(fields["05. price"])
	prevClose := tolerantFloat(fields["08. previous close"])
	q := domain.NewQuote(symbol, price, prevClose)
	q.Open = tolerantFloat(fields["02. open"])
	q.DayHigh = tolerantFloat(fields["03. high"])
	q.DayLow = tolerantFloat(fields["04. low"])
	q.Volume = tolerantInt64(fields["06. volume"])
	q.AsOf = time.Now().UTC()
	q.MarketState = domain.DeriveMarketState(q.AsOf, time.Now().UTC())

	if blob, jsonErr := json.Marshal(q); jsonErr == nil {
		p.cache.Set(cacheKey, blob, p.hotTTL.Quote())
		p.cache.Set(staleKey, blob, p.staleTTL.Quote())
	}
	return q, nil
}

// Quotes has no native batch in the premium wire API: sequential calls,
// aborting the remainder on the first RateLimitExceeded and returning
// collected partial successes, per §4.3.
func (p *PremiumVariant) Quotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(symbols))
	for _, s := range symbols {
		q, err := p.Quote(ctx, s)
		if err != nil {
			if domain.IsKind(err, domain.ErrRateLimitExceeded) {
				return out, nil
			}
			continue
		}
		out[q.Symbol] = q
	}
	return out, nil
}

// --- history -----------------------------------------------------------------

func (p *PremiumVariant) History(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) ([]domain.HistoricalBar, error) {
	symbol = domain.NormalizeSymbol(symbol)
	cacheKey := fmt.Sprintf("premium:historical:%s:%s:%s:%s", symbol, start.Format("2006-01-02"), end.Format("2006-01-02"), interval)
	staleKey := "stale:" + cacheKey

	if raw, ok := p.cache.Get(cacheKey); ok {
		var bars []domain.HistoricalBar
		if err := json.Unmarshal(raw, &bars); err == nil {
			return bars, nil
		}
	}
	if !acquireLimiter(ctx, p.limiter) {
		if stale, ok := p.cache.Get(staleKey); ok {
			var bars []domain.HistoricalBar
			if err := json.Unmarshal(stale, &bars); err == nil {
				return bars, nil
			}
		}
		return nil, domain.NewRateLimitExceeded(p.Name(), symbol, p.limiter.Status().MinuteResetIn)
	}
	p.limiter.Pace(ctx)

	function, seriesKey := premiumSeriesFunction(interval)
	extra := map[string]string{"symbol": symbol}
	if function == "TIME_SERIES_DAILY_ADJUSTED" {
		extra["outputsize"] = "full"
	}
	body, err := p.http.get(ctx, p.Name(), symbol, p.query(function, extra))
	if err != nil {
		return nil, err
	}
	if classErr := p.classify(symbol, body); classErr != nil {
		return nil, classErr
	}

	var raw map[string]json.RawMessage
	if jsonErr := json.Unmarshal(body, &raw); jsonErr != nil {
		return nil, domain.NewAPIUnavailable(p.Name(), symbol, "malformed time series response", jsonErr)
	}
	seriesRaw, ok := raw[seriesKey]
	if !ok {
		return nil, domain.NewSymbolNotFound(p.Name(), symbol)
	}
	var series map[string]map[string]string
	if jsonErr := json.Unmarshal(seriesRaw, &series); jsonErr != nil {
		return nil, domain.NewAPIUnavailable(p.Name(), symbol, "malformed time series payload", jsonErr)
	}

	var bars []domain.HistoricalBar
	for dateStr, fields := range series {
		date, parseErr := time.Parse("2006-01-02", dateStr)
		if parseErr != nil {
			continue
		}
		if date.Before(start) || date.After(end) {
			continue
		}
		adjClose := tolerantFloat(fields["05. adjusted close"])
		closePx := tolerantFloat(fields["04. close"])
		if adjClose == 0 {
			adjClose = closePx
		}
		bars = append(bars, domain.HistoricalBar{
			Symbol:        symbol,
			Date:          date,
			Open:          tolerantFloat(fields["01. open"]),
			High:          tolerantFloat(fields["02. high"]),
			Low:           tolerantFloat(fields["03. low"]),
			Close:         closePx,
			AdjustedClose: adjClose,
			Volume:        tolerantInt64(fields["06. volume"]),
		})
	}
	sortBarsByDate(bars)

	if blob, jsonErr := json.Marshal(bars); jsonErr == nil {
		p.cache.Set(cacheKey, blob, p.hotTTL.Historical())
		p.cache.Set(staleKey, blob, p.staleTTL.Historical())
	}
	return bars, nil
}

// premiumSeriesFunction picks the _ADJUSTED variant of each time-series
// function: only the adjusted endpoints emit "N. adjusted close" and keep
// "N+1. volume" at a fixed offset across daily/weekly/monthly, which is
// what the field lookups below assume.
func premiumSeriesFunction(interval domain.Interval) (function, seriesKey string) {
	switch interval {
	case domain.IntervalWeekly:
		return "TIME_SERIES_WEEKLY_ADJUSTED", "Weekly Adjusted Time Series"
	case domain.IntervalMonthly:
		return "TIME_SERIES_MONTHLY_ADJUSTED", "Monthly Adjusted Time Series"
	default:
		return "TIME_SERIES_DAILY_ADJUSTED", "Time Series (Daily)"
	}
}

func sortBarsByDate(bars []domain.HistoricalBar) {
	for i := 1; i < len(bars); i++ {
		for j := i; j > 0 && bars[j].Date.Before(bars[j-1].Date); j-- {
			bars[j], bars[j-1] = bars[j-1], bars[j]
		}
	}
}

// --- profile + fundamentals (OVERVIEW combines both) --------------------------

func (p *PremiumVariant) overview(ctx context.Context, symbol string) (map[string]string, error) {
	body, err := p.http.get(ctx, p.Name(), symbol, p.query("OVERVIEW", map[string]string{"symbol": symbol}))
	if err != nil {
		return nil, err
	}
	if classErr := p.classify(symbol, body); classErr != nil {
		return nil, classErr
	}
	var fields map[string]string
	if jsonErr := json.Unmarshal(body, &fields); jsonErr != nil {
		return nil, domain.NewAPIUnavailable(p.Name(), symbol, "malformed overview response", jsonErr)
	}
	if len(fields) == 0 {
		return nil, domain.NewSymbolNotFound(p.Name(), symbol)
	}
	return fields, nil
}

func (p *PremiumVariant) Profile(ctx context.Context, symbol string) (domain.Profile, error) {
	symbol = domain.NormalizeSymbol(symbol)
	cacheKey := "premium:profile:" + symbol
	staleKey := "stale:" + cacheKey

	if raw, ok := p.cache.Get(cacheKey); ok {
		var pr domain.Profile
		if err := json.Unmarshal(raw, &pr); err == nil {
			return pr, nil
		}
	}
	if !acquireLimiter(ctx, p.limiter) {
		if stale, ok := p.cache.Get(staleKey); ok {
			var pr domain.Profile
			if err := json.Unmarshal(stale, &pr); err == nil {
				return pr, nil
			}
		}
		return domain.Profile{}, domain.NewRateLimitExceeded(p.Name(), symbol, p.limiter.Status().MinuteResetIn)
	}
	p.limiter.Pace(ctx)

	fields, err := p.overview(ctx, symbol)
	if err != nil {
		return domain.Profile{}, err
	}

	pr := domain.Profile{
		Symbol:      symbol,
		Name:        fields["Name"],
		Sector:      fields["Sector"],
		Industry:    fields["Industry"],
		Description: fields["Description"],
		Exchange:    fields["Exchange"],
		Currency:    fields["Currency"],
		Country:     fields["Country"],
	}
	if blob, jsonErr := json.Marshal(pr); jsonErr == nil {
		p.cache.Set(cacheKey, blob, p.hotTTL.Profile())
		p.cache.Set(staleKey, blob, p.staleTTL.Profile())
	}
	return pr, nil
}

func (p *PremiumVariant) Fundamentals(ctx context.Context, symbol string) (domain.Fundamentals, error) {
	symbol = domain.NormalizeSymbol(symbol)
	cacheKey := "premium:fundamentals:" + symbol
	staleKey := "stale:" + cacheKey

	if raw, ok := p.cache.Get(cacheKey); ok {
		var fd domain.Fundamentals
		if err := json.Unmarshal(raw, &fd); err == nil {
			return fd, nil
		}
	}
	if !acquireLimiter(ctx, p.limiter) {
		if stale, ok := p.cache.Get(staleKey); ok {
			var fd domain.Fundamentals
			if err := json.Unmarshal(stale, &fd); err == nil {
				return fd, nil
			}
		}
		return domain.Fundamentals{}, domain.NewRateLimitExceeded(p.Name(), symbol, p.limiter.Status().MinuteResetIn)
	}
	p.limiter.Pace(ctx)

	fields, err := p.overview(ctx, symbol)
	if err != nil {
		return domain.Fundamentals{}, err
	}

	fd := domain.Fundamentals{
		Symbol:          symbol,
		PERatio:         tolerantFloatPtr(fields["PERatio"]),
		PEGRatio:        tolerantFloatPtr(fields["PEGRatio"]),
		PriceToBook:     tolerantFloatPtr(fields["PriceToBookRatio"]),
		PriceToSales:    tolerantFloatPtr(fields["PriceToSalesRatioTTM"]),
		EPS:             tolerantFloatPtr(fields["EPS"]),
		DividendYield:   tolerantFloatPtr(fields["DividendYield"]),
		PayoutRatio:     tolerantFloatPtr(fields["PayoutRatio"]),
		ProfitMargin:    tolerantFloatPtr(fields["ProfitMargin"]),
		OperatingMargin: tolerantFloatPtr(fields["OperatingMarginTTM"]),
		ReturnOnEquity:  tolerantFloatPtr(fields["ReturnOnEquityTTM"]),
		ReturnOnAssets:  tolerantFloatPtr(fields["ReturnOnAssetsTTM"]),
		RevenueGrowth:   tolerantFloatPtr(fields["QuarterlyRevenueGrowthYOY"]),
		EarningsGrowth:  tolerantFloatPtr(fields["QuarterlyEarningsGrowthYOY"]),
		AsOf:            time.Now().UTC(),
	}
	if blob, jsonErr := json.Marshal(fd); jsonErr == nil {
		p.cache.Set(cacheKey, blob, p.hotTTL.Fundamentals())
		p.cache.Set(staleKey, blob, p.staleTTL.Fundamentals())
	}
	return fd, nil
}

// --- search -----------------------------------------------------------------

type symbolSearchResponse struct {
	BestMatches []map[string]string `json:"bestMatches"`
}

func (p *PremiumVariant) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	cacheKey := "premium:search:" + strings.ToLower(query)
	staleKey := "stale:" + cacheKey

	if raw, ok := p.cache.Get(cacheKey); ok {
		var hits []domain.SearchHit
		if err := json.Unmarshal(raw, &hits); err == nil {
			return rankHits(hits, limit), nil
		}
	}
	if !acquireLimiter(ctx, p.limiter) {
		if stale, ok := p.cache.Get(staleKey); ok {
			var hits []domain.SearchHit
			if err := json.Unmarshal(stale, &hits); err == nil {
				return rankHits(hits, limit), nil
			}
		}
		return nil, domain.NewRateLimitExceeded(p.Name(), query, p.limiter.Status().MinuteResetIn)
	}
	p.limiter.Pace(ctx)

	body, err := p.http.get(ctx, p.Name(), query, p.query("SYMBOL_SEARCH", map[string]string{"keywords": query}))
	if err != nil {
		return nil, err
	}
	if classErr := p.classify(query, body); classErr != nil {
		return nil, classErr
	}

	var parsed symbolSearchResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return nil, domain.NewAPIUnavailable(p.Name(), query, "malformed search response", jsonErr)
	}

	hits := make([]domain.SearchHit, 0, len(parsed.BestMatches))
	for _, m := range parsed.BestMatches {
		hit := domain.SearchHit{
			Symbol:    domain.NormalizeSymbol(m["1. symbol"]),
			Name:      m["2. name"],
			Region:    m["4. region"],
			AssetType: assetTypeFromAlphaVantage(m["3. type"]),
		}
		hit.MatchScore = tolerantFloat(m["9. matchScore"])
		if hit.MatchScore == 0 {
			hit.MatchScore = scoreHit(query, hit.Symbol, hit.Name)
		}
		hits = append(hits, hit)
	}

	if blob, jsonErr := json.Marshal(hits); jsonErr == nil {
		p.cache.Set(cacheKey, blob, p.hotTTL.Search())
		p.cache.Set(staleKey, blob, p.staleTTL.Search())
	}
	return rankHits(hits, limit), nil
}

func assetTypeFromAlphaVantage(t string) domain.AssetType {
	switch strings.ToLower(t) {
	case "equity":
		return domain.AssetStock
	case "etf":
		return domain.AssetETF
	case "mutual fund":
		return domain.AssetFund
	default:
		return domain.AssetUnknown
	}
}
