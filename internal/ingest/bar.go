package ingest

import (
	"fmt"
	"math"
	"time"
)

// Bar is one daily OHLCV observation for one instrument.
type Bar struct {
	Ticker string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate checks the bar is internally consistent: a dated, positively
// priced observation whose high and low actually bound the other prices.
func (b Bar) Validate() error {
	if b.Ticker == "" {
		return fmt.Errorf("bar has no ticker")
	}
	if b.Date.IsZero() {
		return fmt.Errorf("bar has no date")
	}
	for name, v := range map[string]float64{
		"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close,
	} {
		if math.IsNaN(v) || v <= 0 {
			return fmt.Errorf("%s price %v is not positive", name, v)
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("high %v below low %v", b.High, b.Low)
	}
	if b.Open > b.High || b.Open < b.Low {
		return fmt.Errorf("open %v outside [%v, %v]", b.Open, b.Low, b.High)
	}
	if b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("close %v outside [%v, %v]", b.Close, b.Low, b.High)
	}
	if math.IsNaN(b.Volume) || b.Volume < 0 {
		return fmt.Errorf("volume %v is negative", b.Volume)
	}
	return nil
}

// IsValid reports whether the bar passes Validate.
func (b Bar) IsValid() bool {
	return b.Validate() == nil
}
