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

// FreeVariant integrates a Yahoo-Finance-style free quote/chart/search
// backend, per SPEC_FULL.md §6. No API key is required; the rate limiter
// is the only gate on outbound volume.
type FreeVariant struct {
	baseURL  string
	http     *httpPipeline
	limiter  *ratelimit.Limiter
	cache    cache.Cache
	hotTTL   config.CacheTTLs
	staleTTL config.CacheTTLs
}

// NewFree constructs the free variant from its configuration block.
func NewFree(cfg config.ProviderConfig, hotTTL, staleTTL config.CacheTTLs, store cache.Cache) *FreeVariant {
	return &FreeVariant{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     newHTTPPipeline("free", cfg.RequestTimeout(), cfg.MaxRetries),
		limiter:  ratelimit.New("free", cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerDay),
		cache:    store,
		hotTTL:   hotTTL,
		staleTTL: staleTTL,
	}
}

func (f *FreeVariant) Tag() Tag     { return TagFree }
func (f *FreeVariant) Name() string { return "Free" }

// RateLimitStatus exposes the variant's rate-limiter read-out so the
// facade and CostOptimized strategy can factor remaining quota into
// selection without reaching into the limiter directly.
func (f *FreeVariant) RateLimitStatus() domain.RateLimitStatus { return f.limiter.Status() }

func (f *FreeVariant) IsHealthy(ctx context.Context) error {
	_, err := f.http.get(ctx, f.Name(), "", f.baseURL+"/quote?symbols=AAPL")
	if err != nil {
		if domain.IsKind(err, domain.ErrRateLimitExceeded) {
			return nil // reachable but throttled still counts as healthy (§4.5)
		}
		return err
	}
	return nil
}

// --- quote -----------------------------------------------------------------

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
	} `json:"quoteResponse"`
}

type yahooQuote struct {
	Symbol                    string   `json:"symbol"`
	RegularMarketPrice        *float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose *float64 `json:"regularMarketPreviousClose"`
	RegularMarketVolume       *int64   `json:"regularMarketVolume"`
	RegularMarketDayHigh      *float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow       *float64 `json:"regularMarketDayLow"`
	Bid                       *float64 `json:"bid"`
	Ask                       *float64 `json:"ask"`
	FiftyTwoWeekHigh          *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow           *float64 `json:"fiftyTwoWeekLow"`
	AverageDailyVolume3Month  *float64 `json:"averageDailyVolume3Month"`
	MarketCap                 *float64 `json:"marketCap"`
	Exchange                  string   `json:"exchange"`
	FullExchangeName          string   `json:"fullExchangeName"`
	MarketState               string   `json:"marketState"`
}

func (f *FreeVariant) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	quotes, err := f.Quotes(ctx, []string{symbol})
	if err != nil {
		return domain.Quote{}, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.NewSymbolNotFound(f.Name(), symbol)
	}
	return q, nil
}

func (f *FreeVariant) Quotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	normalized := make([]string, len(symbols))
	for i, s := range symbols {
		normalized[i] = domain.NormalizeSymbol(s)
	}
	cacheKey := "free:quote:" + strings.Join(normalized, ",")
	staleKey := "stale:" + cacheKey

	if raw, ok := f.cache.Get(cacheKey); ok {
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	}

	if !acquireLimiter(ctx, f.limiter) {
		status := f.limiter.Status()
		if stale, ok := f.cache.Get(staleKey); ok {
			var staleOut map[string]domain.Quote
			if err := json.Unmarshal(stale, &staleOut); err == nil {
				return staleOut, nil
			}
		}
		return nil, domain.NewRateLimitExceeded(f.Name(), strings.Join(normalized, ","), status.MinuteResetIn)
	}
	f.limiter.Pace(ctx)

	reqURL := fmt.Sprintf("%s/quote?symbols=%s", f.baseURL, url.QueryEscape(strings.Join(normalized, ",")))
	body, err := f.http.get(ctx, f.Name(), strings.Join(normalized, ","), reqURL)
	if err != nil {
		return nil, err
	}
	if class := classifyBody(string(body)); class != classNone {
		return nil, classifiedError(f.Name(), strings.Join(normalized, ","), class)
	}

	var parsed yahooQuoteResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return nil, domain.NewAPIUnavailable(f.Name(), strings.Join(normalized, ","), "malformed quote response", jsonErr)
	}

	now := time.Now().UTC()
	for _, yq := range parsed.QuoteResponse.Result {
		sym := domain.NormalizeSymbol(yq.Symbol)
		q := domain.NewQuote(sym, derefF(yq.RegularMarketPrice), derefF(yq.RegularMarketPreviousClose))
		// Open is left zero: the wire model carries no regularMarketOpen field.
		q.DayHigh = derefF(yq.RegularMarketDayHigh)
		q.DayLow = derefF(yq.RegularMarketDayLow)
		if yq.RegularMarketVolume != nil {
			q.Volume = *yq.RegularMarketVolume
		}
		q.BidPrice = yq.Bid
		q.AskPrice = yq.Ask
		q.FiftyTwoWeekHigh = yq.FiftyTwoWeekHigh
		q.FiftyTwoWeekLow = yq.FiftyTwoWeekLow
		q.AverageVolume = yq.AverageDailyVolume3Month
		q.MarketCap = yq.MarketCap
		q.Exchange = firstNonEmpty(yq.FullExchangeName, yq.Exchange)
		q.AsOf = now
		q.MarketState = marketStateFromYahoo(yq.MarketState, now)
		out[sym] = q
	}

	if blob, jsonErr := json.Marshal(out); jsonErr == nil {
		f.cache.Set(cacheKey, blob, f.hotTTL.Quote())
		f.cache.Set(staleKey, blob, f.staleTTL.Quote())
	}
	return out, nil
}

func marketStateFromYahoo(state string, now time.Time) domain.MarketState {
	switch strings.ToUpper(state) {
	case "REGULAR":
		return domain.MarketOpen
	case "PRE":
		return domain.MarketPreMarket
	case "POST", "POSTPOST":
		return domain.MarketAfterHours
	case "":
		return domain.DeriveMarketState(now, now)
	default:
		return domain.MarketClosed
	}
}

// --- history -----------------------------------------------------------------

type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
	} `json:"chart"`
}

type yahooChartResult struct {
	Meta struct {
		Symbol        string   `json:"symbol"`
		PreviousClose *float64 `json:"previousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

func (f *FreeVariant) History(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) ([]domain.HistoricalBar, error) {
	symbol = domain.NormalizeSymbol(symbol)
	cacheKey := fmt.Sprintf("free:historical:%s:%s:%s:%s", symbol, start.Format("2006-01-02"), end.Format("2006-01-02"), interval)
	staleKey := "stale:" + cacheKey

	if raw, ok := f.cache.Get(cacheKey); ok {
		var bars []domain.HistoricalBar
		if err := json.Unmarshal(raw, &bars); err == nil {
			return bars, nil
		}
	}

	if !acquireLimiter(ctx, f.limiter) {
		if stale, ok := f.cache.Get(staleKey); ok {
			var bars []domain.HistoricalBar
			if err := json.Unmarshal(stale, &bars); err == nil {
				return bars, nil
			}
		}
		return nil, domain.NewRateLimitExceeded(f.Name(), symbol, f.limiter.Status().MinuteResetIn)
	}
	f.limiter.Pace(ctx)

	reqURL := fmt.Sprintf("%s/chart/%s?period1=%d&period2=%d&interval=%s",
		f.baseURL, symbol, start.Unix(), end.Unix(), yahooInterval(interval))
	body, err := f.http.get(ctx, f.Name(), symbol, reqURL)
	if err != nil {
		return nil, err
	}
	if class := classifyBody(string(body)); class != classNone {
		return nil, classifiedError(f.Name(), symbol, class)
	}

	var parsed yahooChartResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return nil, domain.NewAPIUnavailable(f.Name(), symbol, "malformed chart response", jsonErr)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, domain.NewSymbolNotFound(f.Name(), symbol)
	}

	result := parsed.Chart.Result[0]
	var bars []domain.HistoricalBar
	if len(result.Indicators.Quote) > 0 {
		q := result.Indicators.Quote[0]
		for i, ts := range result.Timestamp {
			bar := domain.HistoricalBar{Symbol: symbol, Date: time.Unix(ts, 0).UTC().Truncate(24 * time.Hour)}
			if i < len(q.Open) {
				bar.Open = derefF(q.Open[i])
			}
			if i < len(q.High) {
				bar.High = derefF(q.High[i])
			}
			if i < len(q.Low) {
				bar.Low = derefF(q.Low[i])
			}
			if i < len(q.Close) {
				bar.Close = derefF(q.Close[i])
				bar.AdjustedClose = bar.Close
			}
			if i < len(q.Volume) && q.Volume[i] != nil {
				bar.Volume = *q.Volume[i]
			}
			bars = append(bars, bar)
		}
	}

	if blob, jsonErr := json.Marshal(bars); jsonErr == nil {
		f.cache.Set(cacheKey, blob, f.hotTTL.Historical())
		f.cache.Set(staleKey, blob, f.staleTTL.Historical())
	}
	return bars, nil
}

func yahooInterval(i domain.Interval) string {
	switch i {
	case domain.IntervalWeekly:
		return "1wk"
	case domain.IntervalMonthly:
		return "1mo"
	default:
		return "1d"
	}
}

// --- profile & fundamentals --------------------------------------------------

type yahooSummaryResponse struct {
	QuoteSummary struct {
		Result []map[string]json.RawMessage `json:"result"`
	} `json:"quoteSummary"`
}

type yahooRawNumber struct {
	Raw float64 `json:"raw"`
}

func (f *FreeVariant) Profile(ctx context.Context, symbol string) (domain.Profile, error) {
	symbol = domain.NormalizeSymbol(symbol)
	cacheKey := "free:profile:" + symbol
	staleKey := "stale:" + cacheKey

	if raw, ok := f.cache.Get(cacheKey); ok {
		var p domain.Profile
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
	}
	if !acquireLimiter(ctx, f.limiter) {
		if stale, ok := f.cache.Get(staleKey); ok {
			var p domain.Profile
			if err := json.Unmarshal(stale, &p); err == nil {
				return p, nil
			}
		}
		return domain.Profile{}, domain.NewRateLimitExceeded(f.Name(), symbol, f.limiter.Status().MinuteResetIn)
	}
	f.limiter.Pace(ctx)

	reqURL := fmt.Sprintf("%s/quoteSummary/%s?modules=assetProfile,summaryProfile,price", f.baseURL, symbol)
	body, err := f.http.get(ctx, f.Name(), symbol, reqURL)
	if err != nil {
		return domain.Profile{}, err
	}
	if class := classifyBody(string(body)); class != classNone {
		return domain.Profile{}, classifiedError(f.Name(), symbol, class)
	}

	var parsed yahooSummaryResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return domain.Profile{}, domain.NewAPIUnavailable(f.Name(), symbol, "malformed summary response", jsonErr)
	}
	if len(parsed.QuoteSummary.Result) == 0 {
		return domain.Profile{}, domain.NewSymbolNotFound(f.Name(), symbol)
	}

	raw := parsed.QuoteSummary.Result[0]
	profile := domain.Profile{Symbol: symbol}

	var assetProfile struct {
		Sector    string `json:"sector"`
		Industry  string `json:"industry"`
		Country   string `json:"country"`
		City      string `json:"city"`
		Website   string `json:"website"`
		LongBusinessSummary string `json:"longBusinessSummary"`
		FullTimeEmployees *int `json:"fullTimeEmployees"`
	}
	if v, ok := raw["assetProfile"]; ok {
		_ = json.Unmarshal(v, &assetProfile)
	}
	profile.Sector = assetProfile.Sector
	profile.Industry = assetProfile.Industry
	profile.Country = assetProfile.Country
	profile.City = assetProfile.City
	profile.Website = assetProfile.Website
	profile.Description = assetProfile.LongBusinessSummary
	profile.EmployeeCount = assetProfile.FullTimeEmployees

	var priceModule struct {
		LongName     string `json:"longName"`
		ShortName    string `json:"shortName"`
		Exchange     string `json:"exchangeName"`
		CurrencyCode string `json:"currency"`
	}
	if v, ok := raw["price"]; ok {
		_ = json.Unmarshal(v, &priceModule)
	}
	profile.Name = firstNonEmpty(priceModule.LongName, priceModule.ShortName, symbol)
	profile.Exchange = priceModule.Exchange
	profile.Currency = priceModule.CurrencyCode

	if blob, jsonErr := json.Marshal(profile); jsonErr == nil {
		f.cache.Set(cacheKey, blob, f.hotTTL.Profile())
		f.cache.Set(staleKey, blob, f.staleTTL.Profile())
	}
	return profile, nil
}

func (f *FreeVariant) Fundamentals(ctx context.Context, symbol string) (domain.Fundamentals, error) {
	symbol = domain.NormalizeSymbol(symbol)
	cacheKey := "free:fundamentals:" + symbol
	staleKey := "stale:" + cacheKey

	if raw, ok := f.cache.Get(cacheKey); ok {
		var fd domain.Fundamentals
		if err := json.Unmarshal(raw, &fd); err == nil {
			return fd, nil
		}
	}
	if !acquireLimiter(ctx, f.limiter) {
		if stale, ok := f.cache.Get(staleKey); ok {
			var fd domain.Fundamentals
			if err := json.Unmarshal(stale, &fd); err == nil {
				return fd, nil
			}
		}
		return domain.Fundamentals{}, domain.NewRateLimitExceeded(f.Name(), symbol, f.limiter.Status().MinuteResetIn)
	}
	f.limiter.Pace(ctx)

	reqURL := fmt.Sprintf("%s/quoteSummary/%s?modules=defaultKeyStatistics,financialData,summaryDetail", f.baseURL, symbol)
	body, err := f.http.get(ctx, f.Name(), symbol, reqURL)
	if err != nil {
		return domain.Fundamentals{}, err
	}
	if class := classifyBody(string(body)); class != classNone {
		return domain.Fundamentals{}, classifiedError(f.Name(), symbol, class)
	}

	var parsed yahooSummaryResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return domain.Fundamentals{}, domain.NewAPIUnavailable(f.Name(), symbol, "malformed summary response", jsonErr)
	}
	if len(parsed.QuoteSummary.Result) == 0 {
		return domain.Fundamentals{}, domain.NewSymbolNotFound(f.Name(), symbol)
	}
	raw := parsed.QuoteSummary.Result[0]

	extract := func(module, field string) *float64 {
		v, ok := raw[module]
		if !ok {
			return nil
		}
		var fields map[string]yahooRawNumber
		if err := json.Unmarshal(v, &fields); err != nil {
			return nil
		}
		n, ok := fields[field]
		if !ok {
			return nil
		}
		val := n.Raw
		return &val
	}

	fd := domain.Fundamentals{
		Symbol:          symbol,
		PERatio:         extract("summaryDetail", "trailingPE"),
		PriceToBook:     extract("defaultKeyStatistics", "priceToBook"),
		EPS:             extract("defaultKeyStatistics", "trailingEps"),
		DividendYield:   extract("summaryDetail", "dividendYield"),
		PayoutRatio:     extract("summaryDetail", "payoutRatio"),
		ProfitMargin:    extract("financialData", "profitMargins"),
		OperatingMargin: extract("financialData", "operatingMargins"),
		ReturnOnEquity:  extract("financialData", "returnOnEquity"),
		ReturnOnAssets:  extract("financialData", "returnOnAssets"),
		RevenueGrowth:   extract("financialData", "revenueGrowth"),
		EarningsGrowth:  extract("financialData", "earningsGrowth"),
		CurrentRatio:    extract("financialData", "currentRatio"),
		DebtToEquity:    extract("financialData", "debtToEquity"),
		QuickRatio:      extract("financialData", "quickRatio"),
		AsOf:            time.Now().UTC(),
	}

	if blob, jsonErr := json.Marshal(fd); jsonErr == nil {
		f.cache.Set(cacheKey, blob, f.hotTTL.Fundamentals())
		f.cache.Set(staleKey, blob, f.staleTTL.Fundamentals())
	}
	return fd, nil
}

// --- search -----------------------------------------------------------------

type yahooSearchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

func (f *FreeVariant) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	cacheKey := "free:search:" + strings.ToLower(query)
	staleKey := "stale:" + cacheKey

	if raw, ok := f.cache.Get(cacheKey); ok {
		var hits []domain.SearchHit
		if err := json.Unmarshal(raw, &hits); err == nil {
			return rankHits(hits, limit), nil
		}
	}
	if !acquireLimiter(ctx, f.limiter) {
		if stale, ok := f.cache.Get(staleKey); ok {
			var hits []domain.SearchHit
			if err := json.Unmarshal(stale, &hits); err == nil {
				return rankHits(hits, limit), nil
			}
		}
		return nil, domain.NewRateLimitExceeded(f.Name(), query, f.limiter.Status().MinuteResetIn)
	}
	f.limiter.Pace(ctx)

	reqURL := fmt.Sprintf("%s/search?q=%s&quotesCount=%d&newsCount=0", f.baseURL, url.QueryEscape(query), limit)
	body, err := f.http.get(ctx, f.Name(), query, reqURL)
	if err != nil {
		return nil, err
	}
	if class := classifyBody(string(body)); class != classNone {
		return nil, classifiedError(f.Name(), query, class)
	}

	var parsed yahooSearchResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return nil, domain.NewAPIUnavailable(f.Name(), query, "malformed search response", jsonErr)
	}

	hits := make([]domain.SearchHit, 0, len(parsed.Quotes))
	for _, qr := range parsed.Quotes {
		name := firstNonEmpty(qr.LongName, qr.ShortName)
		hit := domain.SearchHit{
			Symbol:    domain.NormalizeSymbol(qr.Symbol),
			Name:      name,
			Exchange:  qr.Exchange,
			AssetType: assetTypeFromYahoo(qr.QuoteType),
			Region:    "US",
		}
		hit.MatchScore = scoreHit(query, hit.Symbol, hit.Name)
		hits = append(hits, hit)
	}

	if blob, jsonErr := json.Marshal(hits); jsonErr == nil {
		f.cache.Set(cacheKey, blob, f.hotTTL.Search())
		f.cache.Set(staleKey, blob, f.staleTTL.Search())
	}
	return rankHits(hits, limit), nil
}

func assetTypeFromYahoo(quoteType string) domain.AssetType {
	switch strings.ToUpper(quoteType) {
	case "EQUITY":
		return domain.AssetStock
	case "ETF":
		return domain.AssetETF
	case "INDEX":
		return domain.AssetIndex
	case "MUTUALFUND":
		return domain.AssetFund
	case "CURRENCY":
		return domain.AssetCurrency
	case "CRYPTOCURRENCY":
		return domain.AssetCrypto
	case "FUTURE":
		return domain.AssetFuture
	case "OPTION":
		return domain.AssetOption
	default:
		return domain.AssetUnknown
	}
}

// --- shared helpers -----------------------------------------------------------

func classifiedError(provider, symbol string, class bodyClass) error {
	switch class {
	case classInvalidAPIKey:
		return domain.NewInvalidAPIKey(provider, "invalid api key")
	case classInvalidAPICall:
		return domain.NewSymbolNotFound(provider, symbol)
	case classRateLimited:
		return domain.NewRateLimitExceeded(provider, symbol, time.Minute)
	default:
		return nil
	}
}

func derefF(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
