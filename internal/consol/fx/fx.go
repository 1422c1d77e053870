package fx

import (
	"fmt"
	"strings"
)

// Method enumerates supported FX translation methods.
type Method string

const (
	// MethodClosing applies the period-end rate, used for assets and liabilities.
	MethodClosing Method = "CLOSING"
	// MethodAverage applies the period-average rate, used for revenue and expenses.
	MethodAverage Method = "AVERAGE"
	// MethodHistorical applies the equity-origination rate, used for equity.
	MethodHistorical Method = "HISTORICAL"
)

// Quote holds the three rates for one currency pair at one period.
type Quote struct {
	Closing    float64 `json:"closing"`
	Average    float64 `json:"average"`
	Historical float64 `json:"historical"`
}

// Rate returns the rate for the requested method, zero when unset.
func (q Quote) Rate(method Method) float64 {
	switch method {
	case MethodClosing:
		return q.Closing
	case MethodAverage:
		return q.Average
	case MethodHistorical:
		return q.Historical
	}
	return 0
}

// MissingRateError reports an unconfigured rate for a pair and method.
type MissingRateError struct {
	Pair   string
	Method Method
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("fx: no %s rate for %s", strings.ToLower(string(e.Method)), e.Pair)
}

// Policy describes the FX translation behaviour for consolidated runs.
type Policy struct {
	ReportingCurrency string
}

// Converter translates local-currency amounts into the reporting currency.
// An entity already denominated in the reporting currency translates at
// parity for every method.
type Converter struct {
	policy Policy
	quotes map[string]Quote
}

// NewConverter constructs a converter over the resolved quotes, keyed by
// currency pair (e.g. "EURUSD").
func NewConverter(policy Policy, quotes map[string]Quote) *Converter {
	policy.ReportingCurrency = strings.ToUpper(strings.TrimSpace(policy.ReportingCurrency))
	if quotes == nil {
		quotes = map[string]Quote{}
	}
	return &Converter{policy: policy, quotes: quotes}
}

// Quotes returns the quotes the converter was built from.
func (c *Converter) Quotes() map[string]Quote {
	return c.quotes
}

// Translate converts amount from the local currency using the given method.
func (c *Converter) Translate(localCurrency string, method Method, amount float64) (float64, error) {
	localCurrency = strings.ToUpper(strings.TrimSpace(localCurrency))
	if localCurrency == "" || localCurrency == c.policy.ReportingCurrency {
		return amount, nil
	}
	pair := localCurrency + c.policy.ReportingCurrency
	quote, ok := c.quotes[pair]
	if !ok {
		return 0, &MissingRateError{Pair: pair, Method: method}
	}
	rate := quote.Rate(method)
	if rate <= 0 {
		return 0, &MissingRateError{Pair: pair, Method: method}
	}
	return amount * rate, nil
}
