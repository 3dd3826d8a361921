package llm

// modelRate is USD per million tokens.
type modelRate struct {
	Input  float64
	Output float64
}

// pricing maps model identifiers to published rates. Models not listed
// here are billed at defaultRate so estimates stay non-zero when a new
// model ships before the table is updated.
var pricing = map[string]modelRate{
	"gpt-4o":                     {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
	"gpt-4-turbo":                {Input: 10.00, Output: 30.00},
	"o3-mini":                    {Input: 1.10, Output: 4.40},
	"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00},
	"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.00},
	"claude-3-opus-20240229":     {Input: 15.00, Output: 75.00},
}

var defaultRate = modelRate{Input: 1.00, Output: 3.00}

// EstimateCost returns the USD cost of one call.
func EstimateCost(model string, u Usage) float64 {
	rate, ok := pricing[model]
	if !ok {
		rate = defaultRate
	}
	return (float64(u.InputTokens)*rate.Input + float64(u.OutputTokens)*rate.Output) / 1e6
}
