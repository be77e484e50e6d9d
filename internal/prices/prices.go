/*
This file fetches token spot prices from a CoinGecko-compatible API.

Prices feed USD valuations on positions and rewards only; they never gate a
claim, so the service degrades instead of failing: fresh cache, then live
fetch, then stale cache, then a static fallback table.
*/

package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/harvest-move/harvest/internal/logger"
)

var priceLogger = logger.GetForComponent("price_service")

var ErrPriceUnavailable = errors.New("price unavailable")

const (
	defaultTTL     = time.Minute
	staleRetention = 10 // entries are kept this many TTLs for stale fallback
	requestTimeout = 10 * time.Second
)

// coingeckoIDs maps token symbols to CoinGecko ids.
var coingeckoIDs = map[string]string{
	"MOVE": "movement",
	"APT":  "aptos",
	"USDC": "usd-coin",
	"USDT": "tether",
	"ETH":  "ethereum",
	"WETH": "ethereum",
	"BTC":  "bitcoin",
	"WBTC": "wrapped-bitcoin",
}

// fallbackPrices is the last resort when the API is unreachable and no cached
// value exists.
var fallbackPrices = map[string]float64{
	"MOVE": 1.25,
	"APT":  8.5,
	"USDC": 1.0,
	"USDT": 1.0,
	"ETH":  3200,
	"WETH": 3200,
	"BTC":  95000,
	"WBTC": 95000,
}

type cachedPrice struct {
	Price     float64
	FetchedAt time.Time
}

// Service fetches and caches token USD prices. It is constructed once at
// startup and passed by reference to every consumer; the cache is owned here,
// not ambient.
type Service struct {
	baseURL    string
	ttl        time.Duration
	httpClient *http.Client
	cache      *ristretto.Cache
}

// NewService creates a price service against a CoinGecko-compatible base URL.
func NewService(baseURL string, ttl time.Duration) (*Service, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 12,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create price cache: %w", err)
	}

	return &Service{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		ttl:        ttl,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      cache,
	}, nil
}

// TokenPrice returns the USD price for a token symbol. Never returns an
// error: valuation is best-effort and falls back to stale or static data.
func (s *Service) TokenPrice(ctx context.Context, symbol string) float64 {
	symbol = strings.ToUpper(symbol)

	if entry, fresh := s.lookup(symbol); fresh {
		return entry.Price
	}

	fetched, err := s.fetch(ctx, []string{symbol})
	if err == nil {
		if price, ok := fetched[symbol]; ok {
			return price
		}
	} else {
		priceLogger.Warn().Err(err).Str("symbol", symbol).Msg("Price fetch failed")
	}

	// Stale cache beats the static table.
	if entry, _ := s.lookup(symbol); entry != nil {
		priceLogger.Debug().Str("symbol", symbol).Msg("Using stale cached price")
		return entry.Price
	}

	fallback := fallbackPrices[symbol]
	priceLogger.Debug().Str("symbol", symbol).Float64("price", fallback).Msg("Using fallback price")
	return fallback
}

// KnownSymbols lists every symbol the service can quote from the live API.
// Callers use it to warm the cache in one batched call before pricing
// rewards symbol by symbol.
func KnownSymbols() []string {
	symbols := make([]string, 0, len(coingeckoIDs))
	for symbol := range coingeckoIDs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// TokenPrices resolves several symbols at once, batching the uncached ones
// into a single API call.
func (s *Service) TokenPrices(ctx context.Context, symbols []string) map[string]float64 {
	result := make(map[string]float64, len(symbols))
	var toFetch []string

	for _, symbol := range symbols {
		symbol = strings.ToUpper(symbol)
		if _, done := result[symbol]; done {
			continue
		}
		if entry, fresh := s.lookup(symbol); fresh {
			result[symbol] = entry.Price
		} else {
			toFetch = append(toFetch, symbol)
		}
	}

	if len(toFetch) == 0 {
		return result
	}

	fetched, err := s.fetch(ctx, toFetch)
	if err != nil {
		priceLogger.Warn().Err(err).Strs("symbols", toFetch).Msg("Batch price fetch failed")
	}

	for _, symbol := range toFetch {
		if price, ok := fetched[symbol]; ok {
			result[symbol] = price
			continue
		}
		if entry, _ := s.lookup(symbol); entry != nil {
			result[symbol] = entry.Price
			continue
		}
		result[symbol] = fallbackPrices[symbol]
	}

	return result
}

// lookup returns the cached entry (possibly stale) and whether it is fresh.
// Freshness is checked on read against the service TTL.
func (s *Service) lookup(symbol string) (*cachedPrice, bool) {
	value, found := s.cache.Get(symbol)
	if !found {
		return nil, false
	}
	entry, ok := value.(cachedPrice)
	if !ok {
		return nil, false
	}
	return &entry, time.Since(entry.FetchedAt) < s.ttl
}

func (s *Service) store(symbol string, price float64) {
	s.cache.SetWithTTL(symbol, cachedPrice{Price: price, FetchedAt: time.Now()}, 1, s.ttl*staleRetention)
}

// Wait flushes pending cache writes. Intended for tests.
func (s *Service) Wait() {
	s.cache.Wait()
}

func (s *Service) fetch(ctx context.Context, symbols []string) (map[string]float64, error) {
	var ids []string
	idToSymbols := make(map[string][]string)
	for _, symbol := range symbols {
		id, known := coingeckoIDs[symbol]
		if !known {
			priceLogger.Warn().Str("symbol", symbol).Msg("No price feed id for token")
			continue
		}
		if len(idToSymbols[id]) == 0 {
			ids = append(ids, id)
		}
		idToSymbols[id] = append(idToSymbols[id], symbol)
	}
	if len(ids) == 0 {
		return nil, ErrPriceUnavailable
	}

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", s.baseURL, strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("price API returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}

	result := make(map[string]float64)
	for id, quotes := range decoded {
		price, ok := quotes["usd"]
		if !ok || price <= 0 {
			continue
		}
		for _, symbol := range idToSymbols[id] {
			result[symbol] = price
			s.store(symbol, price)
		}
	}

	return result, nil
}
