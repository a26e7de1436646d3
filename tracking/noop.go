package tracking

// Noop is a tracking client that records nothing, used for offline runs
// with tracking disabled in the configuration.
type Noop struct{}

// LogMetric discards the metric
func (Noop) LogMetric(name string, value float64) error {
	return nil
}

// LogParameter discards the parameter
func (Noop) LogParameter(name string, value any) error {
	return nil
}

// LogParameters discards the parameters
func (Noop) LogParameters(params map[string]any) error {
	return nil
}
