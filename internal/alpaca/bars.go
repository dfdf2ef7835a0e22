package alpaca

// Bar is one daily OHLCV bar as returned by the data API; only the close
// and timestamp matter here.
type Bar struct {
	Time   string  `json:"t"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

type barsResponse struct {
	Bars          map[string][]Bar `json:"bars"`
	NextPageToken *string          `json:"next_page_token"`
}

// DailyClose is a single (trading day, closing price) observation.
type DailyClose struct {
	Date  string // YYYY-MM-DD
	Close float64
}

// PriceHistory is an ordered, date-indexed table of closing prices.
// Column i belongs to Tickers[i] for every row; the two slices must only
// ever be reordered together.
type PriceHistory struct {
	Tickers []string
	Dates   []string    // YYYY-MM-DD, ascending
	Rows    [][]float64 // Rows[t][i] = close of Tickers[i] on Dates[t]
}

// Column returns a copy of the series for ticker index i.
func (h *PriceHistory) Column(i int) []float64 {
	out := make([]float64, len(h.Rows))
	for t, row := range h.Rows {
		out[t] = row[i]
	}
	return out
}

// Last returns the most recent row (the current price vector).
func (h *PriceHistory) Last() []float64 {
	if len(h.Rows) == 0 {
		return nil
	}
	return append([]float64(nil), h.Rows[len(h.Rows)-1]...)
}

// Diff returns per-period dollar changes (row t minus row t-1); the first,
// undefined row is dropped. Values are no longer prices but the table
// shape is reused for alignment.
func (h *PriceHistory) Diff() *PriceHistory {
	return h.transform(func(cur, prev float64) float64 { return cur - prev })
}

// PctChange returns per-period simple returns (row t / row t-1 - 1); the
// first, undefined row is dropped.
func (h *PriceHistory) PctChange() *PriceHistory {
	return h.transform(func(cur, prev float64) float64 { return cur/prev - 1 })
}

func (h *PriceHistory) transform(f func(cur, prev float64) float64) *PriceHistory {
	out := &PriceHistory{Tickers: append([]string(nil), h.Tickers...)}
	for t := 1; t < len(h.Rows); t++ {
		row := make([]float64, len(h.Tickers))
		for i := range h.Tickers {
			row[i] = f(h.Rows[t][i], h.Rows[t-1][i])
		}
		out.Dates = append(out.Dates, h.Dates[t])
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Sample keeps every step-th row starting from the first.
func (h *PriceHistory) Sample(step int) *PriceHistory {
	if step <= 1 {
		return h
	}
	out := &PriceHistory{Tickers: append([]string(nil), h.Tickers...)}
	for t := 0; t < len(h.Rows); t += step {
		out.Dates = append(out.Dates, h.Dates[t])
		out.Rows = append(out.Rows, h.Rows[t])
	}
	return out
}
