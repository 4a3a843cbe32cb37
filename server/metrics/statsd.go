package metrics

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cactus/go-statsd-client/statsd"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	tallystatsd "github.com/uber-go/tally/v4/statsd"
)

// NewScope builds the root metrics scope. When no statsd sink is configured
// the scope is a no-op. The returned closer flushes buffered stats and must
// be closed on shutdown.
func NewScope(cfg valid.Metrics, prefix string) (tally.Scope, io.Closer, error) {
	reporter, err := newReporter(cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating stats reporter")
	}

	opts := tally.ScopeOptions{
		Prefix:   prefix,
		Reporter: reporter,
	}
	scope, closer := tally.NewRootScope(opts, time.Second)
	return scope, closer, nil
}

func newReporter(cfg valid.Metrics) (tally.StatsReporter, error) {
	if cfg.Statsd == nil {
		return nil, nil
	}

	client, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address: strings.Join([]string{cfg.Statsd.Host, cfg.Statsd.Port}, ":"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "initializing statsd client")
	}

	return &pointTagReporter{
		StatsReporter: tallystatsd.NewReporter(client, tallystatsd.Options{}),
		separator:     ",",
	}, nil
}

// pointTagReporter encodes tags into the metric name the way influx-flavored
// statsd expects.
type pointTagReporter struct {
	tally.StatsReporter

	separator string
}

// https://github.com/influxdata/telegraf/blob/master/plugins/inputs/statsd/README.md#influx-statsd
func (r *pointTagReporter) taggedName(name string, tags map[string]string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range sortedKeys(tags) {
		b.WriteString(r.separator)
		b.WriteString(replaceChars(k))
		b.WriteByte('=')
		b.WriteString(replaceChars(tags[k]))
	}
	return b.String()
}

func (r *pointTagReporter) ReportCounter(name string, tags map[string]string, value int64) {
	r.StatsReporter.ReportCounter(r.taggedName(name, tags), nil, value)
}

func (r *pointTagReporter) ReportGauge(name string, tags map[string]string, value float64) {
	r.StatsReporter.ReportGauge(r.taggedName(name, tags), nil, value)
}

func (r *pointTagReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	r.StatsReporter.ReportTimer(r.taggedName(name, tags), nil, interval)
}

func (r *pointTagReporter) ReportHistogramValueSamples(name string, tags map[string]string, buckets tally.Buckets, bucketLowerBound, bucketUpperBound float64, samples int64) {
	r.StatsReporter.ReportHistogramValueSamples(r.taggedName(name, tags), nil, buckets, bucketLowerBound, bucketUpperBound, samples)
}

func (r *pointTagReporter) ReportHistogramDurationSamples(name string, tags map[string]string, buckets tally.Buckets, bucketLowerBound, bucketUpperBound time.Duration, samples int64) {
	r.StatsReporter.ReportHistogramDurationSamples(r.taggedName(name, tags), nil, buckets, bucketLowerBound, bucketUpperBound, samples)
}

func sortedKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Replace problematic characters in tags.
func replaceChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', ':', '|', '-', '=':
			b.WriteByte('_')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
