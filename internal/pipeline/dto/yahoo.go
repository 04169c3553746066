package dto

// Yahoo Finance v8 chart API response shapes. Quote slices are nullable:
// a nil entry means the exchange reported no data for that bar.

type YahooChartResponse struct {
	Chart YahooChart `json:"chart"`
}

type YahooChart struct {
	Result []YahooChartResult `json:"result"`
	Error  *YahooAPIError     `json:"error"`
}

type YahooChartResult struct {
	Meta       YahooChartMeta  `json:"meta"`
	Timestamp  []int64         `json:"timestamp"`
	Indicators YahooIndicators `json:"indicators"`
}

type YahooChartMeta struct {
	Symbol             string  `json:"symbol"`
	Currency           string  `json:"currency"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
}

type YahooIndicators struct {
	Quote []YahooOHLCV `json:"quote"`
}

type YahooOHLCV struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type YahooAPIError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
