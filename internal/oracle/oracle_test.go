package oracle

import "testing"

func TestPriceScaling(t *testing.T) {
	t.Run("Exact Exponent", func(t *testing.T) {
		p := PriceData{Price: 150_000_000_000, Exponent: -9}
		got, err := p.Scaled(9)
		if err != nil || got != 150_000_000_000 {
			t.Errorf("Scaled = %d, %v", got, err)
		}
	})

	t.Run("Scale Up", func(t *testing.T) {
		p := PriceData{Price: 150, Exponent: -2}
		got, err := p.Scaled(9)
		if err != nil || got != 1_500_000_000 {
			t.Errorf("Scaled = %d, %v; want 1500000000", got, err)
		}
	})

	t.Run("Scale Down", func(t *testing.T) {
		p := PriceData{Price: 1_234_567_890, Exponent: -9}
		got, err := p.Scaled(2)
		if err != nil || got != 123 {
			t.Errorf("Scaled = %d, %v; want 123", got, err)
		}
	})

	t.Run("Negative Price Rejected", func(t *testing.T) {
		p := PriceData{Price: -1, Exponent: -9}
		if _, err := p.Scaled(9); err == nil {
			t.Error("negative price should not scale")
		}
	})

	t.Run("Overflow Rejected", func(t *testing.T) {
		p := PriceData{Price: 1 << 60, Exponent: 0}
		if _, err := p.Scaled(9); err == nil {
			t.Error("scaling overflow should be rejected")
		}
	})
}

func TestStaleness(t *testing.T) {
	p := PriceData{PublishTime: 100}
	if p.Stale(150, 60) {
		t.Error("observation within max age reported stale")
	}
	if p.Stale(160, 60) {
		t.Error("observation exactly at max age reported stale")
	}
	if !p.Stale(161, 60) {
		t.Error("observation past max age not reported stale")
	}
}

func TestStaticFeed(t *testing.T) {
	feed := NewStaticFeed()
	var a [32]byte
	a[0] = 1

	if _, err := feed.Price(a); err != ErrPriceUnavailable {
		t.Errorf("missing asset: err = %v, want ErrPriceUnavailable", err)
	}
	feed.Set(a, PriceData{Price: 42, Exponent: 0, PublishTime: 10})
	p, err := feed.Price(a)
	if err != nil || p.Price != 42 {
		t.Errorf("Price = %+v, %v", p, err)
	}
}
