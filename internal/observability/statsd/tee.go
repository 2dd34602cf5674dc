package statsd

import "time"

type tee []Sink

// Tee returns a Sink that forwards every metric to each non-nil sink. It
// returns nil when no sinks are given and the sink itself when only one is.
func Tee(sinks ...Sink) Sink {
	var out tee
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (t tee) Count(name string, value int64, tags map[string]string) {
	for _, s := range t {
		s.Count(name, value, tags)
	}
}

func (t tee) Gauge(name string, value float64, tags map[string]string) {
	for _, s := range t {
		s.Gauge(name, value, tags)
	}
}

func (t tee) Timing(name string, value time.Duration, tags map[string]string) {
	for _, s := range t {
		s.Timing(name, value, tags)
	}
}
