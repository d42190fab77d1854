package forecast

import (
	"math"

	"github.com/datalens/datalens-ai/internal/analytics"
	"github.com/datalens/datalens-ai/internal/dataset"
)

// Package forecast projects a numeric column forward with one of three
// lightweight methods — linear regression, seasonal decomposition or an
// exponential moving average — selected automatically unless the caller
// pins one.

// Method names accepted by Forecast.
const (
	MethodAuto     = "auto"
	MethodLinear   = "linear"
	MethodSeasonal = "seasonal"
	MethodEMA      = "moving_average"
)

const (
	// minPoints is the smallest series worth projecting.
	minPoints = 10

	// emaAlpha is the smoothing factor of the moving-average method.
	emaAlpha = 0.3

	// z95 is the 1.96 multiplier of a 95% confidence interval.
	z95 = 1.96

	// holdoutSize is how many trailing points back-testing withholds.
	holdoutSize = 5

	// MaxColumns bounds a multi-column forecast request.
	MaxColumns = 5
)

// Point is one charted value, historical or forecast.
type Point struct {
	Index   int     `json:"index"`
	Value   float64 `json:"value"`
	Type    string  `json:"type"`
	CILower float64 `json:"ci_lower,omitempty"`
	CIUpper float64 `json:"ci_upper,omitempty"`
}

// ModelInfo describes the fitted model.
type ModelInfo struct {
	Method            string  `json:"method"`
	Slope             float64 `json:"slope,omitempty"`
	Intercept         float64 `json:"intercept,omitempty"`
	RSquared          float64 `json:"r_squared,omitempty"`
	SeasonalityPeriod int     `json:"seasonality_period,omitempty"`
	Alpha             float64 `json:"alpha,omitempty"`
}

// Accuracy holds holdout back-test metrics. Zero values mean the series was
// too short to withhold a test window.
type Accuracy struct {
	MAPE float64 `json:"mape"`
	RMSE float64 `json:"rmse"`
}

// Summary condenses the projection for the dashboard header.
type Summary struct {
	CurrentValue        float64 `json:"current_value"`
	ForecastedEndValue  float64 `json:"forecasted_end_value"`
	ForecastChangePct   float64 `json:"forecast_change_pct"`
	TrendDirection      string  `json:"trend_direction"`
	SeasonalityDetected bool    `json:"seasonality_detected"`
	SeasonalityPeriod   int     `json:"seasonality_period,omitempty"`
}

// Result is a single-column forecast.
type Result struct {
	Column     string    `json:"column"`
	Periods    int       `json:"periods"`
	Model      ModelInfo `json:"model_info"`
	Accuracy   Accuracy  `json:"accuracy_metrics"`
	Historical []Point   `json:"historical_data"`
	Forecast   []Point   `json:"forecast_data"`
	Summary    Summary   `json:"summary"`
}

// Forecast projects column forward by periods steps. method is one of the
// Method constants; MethodAuto picks seasonal when a period is detected,
// linear when the end-to-end trend is material, and the moving average
// otherwise.
func Forecast(rows []dataset.Row, column string, periods int, method string) (*Result, error) {
	if periods <= 0 {
		return nil, analytics.NewInputError("periods must be positive, got %d", periods)
	}

	values := dataset.ColumnNumbers(rows, column)
	if len(values) < minPoints {
		return nil, analytics.NewInputError("need at least %d data points for forecasting, got %d", minPoints, len(values))
	}

	n := len(values)
	mean := meanOf(values)
	std := stdOf(values, mean)
	trend := (values[n-1] - values[0]) / float64(n)

	period := seasonalityPeriod(values, mean)

	if method == "" || method == MethodAuto {
		switch {
		case period > 0:
			method = MethodSeasonal
		case math.Abs(trend) > std*0.1:
			method = MethodLinear
		default:
			method = MethodEMA
		}
	}
	if method == MethodSeasonal && period == 0 {
		method = MethodEMA
	}

	var (
		forecasts []Point
		model     ModelInfo
	)
	switch method {
	case MethodLinear:
		forecasts, model = linearForecast(values, periods)
	case MethodSeasonal:
		forecasts, model = seasonalForecast(values, periods, period, mean, std)
	case MethodEMA:
		forecasts, model = emaForecast(values, periods, std)
	default:
		return nil, analytics.NewInputError("unknown forecast method %q", method)
	}

	historical := make([]Point, n)
	for i, v := range values {
		historical[i] = Point{Index: i, Value: v, Type: "historical"}
	}

	result := &Result{
		Column:     column,
		Periods:    periods,
		Model:      model,
		Accuracy:   backtest(values, method),
		Historical: historical,
		Forecast:   forecasts,
	}
	result.Summary = summarize(values, forecasts, period)
	return result, nil
}

// ForecastColumns runs Forecast over up to MaxColumns columns, skipping the
// ones that fail with an input error so one short column cannot sink the
// whole request.
func ForecastColumns(rows []dataset.Row, columns []string, periods int) ([]*Result, error) {
	if len(columns) == 0 {
		return nil, analytics.NewInputError("no columns requested")
	}
	if len(columns) > MaxColumns {
		columns = columns[:MaxColumns]
	}

	var results []*Result
	for _, col := range columns {
		r, err := Forecast(rows, col, periods, MethodAuto)
		if err != nil {
			if analytics.IsInputError(err) {
				continue
			}
			return nil, err
		}
		results = append(results, r)
	}
	if len(results) == 0 {
		return nil, analytics.NewInputError("no requested column has enough numeric data")
	}
	return results, nil
}

// seasonalityPeriod locates the first autocorrelation peak above 0.3. Series
// of 20 points or fewer are too short to call seasonal.
func seasonalityPeriod(values []float64, mean float64) int {
	n := len(values)
	if n <= 20 {
		return 0
	}

	denom := 0.0
	for _, v := range values {
		denom += (v - mean) * (v - mean)
	}
	if denom == 0 {
		return 0
	}

	autocorr := func(lag int) float64 {
		sum := 0.0
		for i := 0; i < n-lag; i++ {
			sum += (values[i] - mean) * (values[i+lag] - mean)
		}
		return sum / denom
	}

	limit := n / 2
	prev := autocorr(1)
	cur := autocorr(2)
	for lag := 2; lag < limit; lag++ {
		next := autocorr(lag + 1)
		if cur > prev && cur > next && cur > 0.3 {
			return lag
		}
		prev, cur = cur, next
	}
	return 0
}

func linearForecast(values []float64, periods int) ([]Point, ModelInfo) {
	n := len(values)
	slope, intercept, r2, stdErr := linregress(values)

	xMean := float64(n-1) / 2
	sxx := 0.0
	for i := 0; i < n; i++ {
		d := float64(i) - xMean
		sxx += d * d
	}

	out := make([]Point, periods)
	for i := 0; i < periods; i++ {
		x := float64(n + i)
		v := intercept + slope*x
		se := stdErr * math.Sqrt(1+1/float64(n)+(x-xMean)*(x-xMean)/sxx)
		out[i] = Point{
			Index:   n + i,
			Value:   v,
			Type:    "forecast",
			CILower: v - z95*se,
			CIUpper: v + z95*se,
		}
	}
	return out, ModelInfo{Method: "linear_regression", Slope: slope, Intercept: intercept, RSquared: r2}
}

func seasonalForecast(values []float64, periods, period int, mean, std float64) ([]Point, ModelInfo) {
	n := len(values)

	seasonal := make([]float64, period)
	for i := 0; i < period; i++ {
		sum, count := 0.0, 0
		for j := i; j < n; j += period {
			sum += values[j]
			count++
		}
		seasonal[i] = sum/float64(count) - mean
	}

	deseasonalized := make([]float64, n)
	for i, v := range values {
		deseasonalized[i] = v - seasonal[i%period]
	}
	slope, intercept, _, _ := linregress(deseasonalized)

	out := make([]Point, periods)
	for i := 0; i < periods; i++ {
		x := float64(n + i)
		v := intercept + slope*x + seasonal[(n+i)%period]
		out[i] = Point{
			Index:   n + i,
			Value:   v,
			Type:    "forecast",
			CILower: v - z95*std,
			CIUpper: v + z95*std,
		}
	}
	return out, ModelInfo{Method: "seasonal_decomposition", Slope: slope, SeasonalityPeriod: period}
}

func emaForecast(values []float64, periods int, std float64) ([]Point, ModelInfo) {
	n := len(values)

	ema := values[0]
	for _, v := range values[1:] {
		ema = emaAlpha*v + (1-emaAlpha)*ema
	}

	window := n
	if window > 5 {
		window = 5
	}
	recentTrend := (values[n-1] - values[n-window]) / float64(window)

	out := make([]Point, periods)
	for i := 0; i < periods; i++ {
		v := ema + recentTrend*float64(i+1)
		ci := std * math.Sqrt(float64(i+1)) * 0.5
		out[i] = Point{
			Index:   n + i,
			Value:   v,
			Type:    "forecast",
			CILower: v - z95*ci,
			CIUpper: v + z95*ci,
		}
	}
	return out, ModelInfo{Method: "exponential_moving_average", Alpha: emaAlpha, Slope: recentTrend}
}

// backtest withholds the trailing window, re-fits on the remainder and
// scores the withheld points. Only the linear method re-fits; the others use
// a last-value baseline, matching how little signal they carry about shape.
func backtest(values []float64, method string) Accuracy {
	n := len(values)
	if n <= holdoutSize {
		return Accuracy{}
	}

	trainSize := n - holdoutSize
	train := values[:trainSize]
	test := values[trainSize:]

	predictions := make([]float64, holdoutSize)
	if method == MethodLinear {
		slope, intercept, _, _ := linregress(train)
		for i := range predictions {
			predictions[i] = intercept + slope*float64(trainSize+i)
		}
	} else {
		for i := range predictions {
			predictions[i] = train[trainSize-1]
		}
	}

	mape, mapeCount := 0.0, 0
	sqErr := 0.0
	for i, actual := range test {
		diff := actual - predictions[i]
		sqErr += diff * diff
		if actual != 0 {
			mape += math.Abs(diff / actual)
			mapeCount++
		}
	}

	acc := Accuracy{RMSE: math.Sqrt(sqErr / float64(holdoutSize))}
	if mapeCount > 0 {
		acc.MAPE = mape / float64(mapeCount) * 100
	}
	return acc
}

func summarize(values []float64, forecasts []Point, period int) Summary {
	n := len(values)
	current := values[n-1]
	end := forecasts[len(forecasts)-1].Value

	changePct := 0.0
	if current != 0 {
		changePct = (end - current) / current * 100
	}

	direction := "stable"
	switch {
	case changePct > 2:
		direction = "increasing"
	case changePct < -2:
		direction = "decreasing"
	}

	return Summary{
		CurrentValue:        current,
		ForecastedEndValue:  end,
		ForecastChangePct:   changePct,
		TrendDirection:      direction,
		SeasonalityDetected: period > 0,
		SeasonalityPeriod:   period,
	}
}

// linregress fits y = intercept + slope·x over x = 0..n−1 and returns the
// fit quality and the residual standard error of the slope estimate.
func linregress(values []float64) (slope, intercept, r2, stdErr float64) {
	n := float64(len(values))
	xMean := (n - 1) / 2
	yMean := meanOf(values)

	sxx, sxy, syy := 0.0, 0.0, 0.0
	for i, y := range values {
		dx := float64(i) - xMean
		dy := y - yMean
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return 0, yMean, 0, 0
	}

	slope = sxy / sxx
	intercept = yMean - slope*xMean

	if syy > 0 {
		r2 = (sxy * sxy) / (sxx * syy)
	}

	if len(values) > 2 {
		residual := syy - slope*sxy
		if residual < 0 {
			residual = 0
		}
		stdErr = math.Sqrt(residual / (n - 2) / sxx)
	}
	return slope, intercept, r2, stdErr
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdOf(values []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return math.Sqrt(sum / float64(len(values)))
}
