// oracle.go - External price feed access.
//
// Prices arrive in fixed-point form with a base-10 exponent
// (value = price * 10^exponent) and carry the publisher's timestamp, so
// consumers can rescale to their own decimal convention and reject stale
// observations.

package oracle

import (
	"errors"
	"sync"
)

// ErrPriceUnavailable is returned when a feed has no observation for the
// requested asset.
var ErrPriceUnavailable = errors.New("oracle: price unavailable")

// PriceData is one price observation.
type PriceData struct {
	// Price in fixed-point representation; negative prices are rejected at
	// scaling time.
	Price int64 `json:"price"`
	// Confidence is the publisher's confidence interval, in the same scale
	// as Price.
	Confidence uint64 `json:"confidence"`
	// Exponent of the fixed-point representation.
	Exponent int32 `json:"exponent"`
	// PublishTime is the unix timestamp of the observation.
	PublishTime int64 `json:"publish_time"`
}

// Scaled rescales the price to the given number of decimal places.
// It fails on negative prices and on multiplication overflow.
func (p PriceData) Scaled(decimals uint8) (uint64, error) {
	if p.Price < 0 {
		return 0, errors.New("oracle: negative price")
	}
	price := uint64(p.Price)
	targetExp := -int32(decimals)

	switch {
	case p.Exponent == targetExp:
		return price, nil
	case p.Exponent > targetExp:
		factor := pow10(uint32(p.Exponent - targetExp))
		if factor == 0 || (price != 0 && price*factor/factor != price) {
			return 0, errors.New("oracle: price scaling overflow")
		}
		return price * factor, nil
	default:
		factor := pow10(uint32(targetExp - p.Exponent))
		if factor == 0 {
			return 0, nil
		}
		return price / factor, nil
	}
}

// Stale reports whether the observation is older than maxAge seconds at the
// given time.
func (p PriceData) Stale(now, maxAge int64) bool {
	return now-p.PublishTime > maxAge
}

// pow10 returns 10^n, or 0 on overflow of uint64.
func pow10(n uint32) uint64 {
	if n > 19 {
		return 0
	}
	out := uint64(1)
	for i := uint32(0); i < n; i++ {
		out *= 10
	}
	return out
}

// Feed serves price observations per asset identifier.
type Feed interface {
	Price(asset [32]byte) (PriceData, error)
}

// StaticFeed is an in-memory feed, useful for tests and local deployments.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[[32]byte]PriceData
}

// NewStaticFeed creates an empty static feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{prices: make(map[[32]byte]PriceData)}
}

// Set installs or replaces the observation for asset.
func (f *StaticFeed) Set(asset [32]byte, p PriceData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[asset] = p
}

// Price returns the current observation for asset.
func (f *StaticFeed) Price(asset [32]byte) (PriceData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[asset]
	if !ok {
		return PriceData{}, ErrPriceUnavailable
	}
	return p, nil
}
