package runtimefilter

import (
	"time"

	"github.com/stratosql/runtimefilter/bloom"
	"github.com/stratosql/runtimefilter/wire"
)

// Mode controls how far a produced filter travels.
type Mode int

const (
	// ModeOff disables runtime filtering entirely.
	ModeOff Mode = iota
	// ModeLocal publishes filters only to co-located consumers.
	ModeLocal
	// ModeGlobal additionally dispatches filters to the aggregation
	// coordinator for cross-node consumers.
	ModeGlobal
)

// DefaultArrivalTimeout bounds how long consumers wait for a filter,
// measured from the filter's registration.
const DefaultArrivalTimeout = time.Second

// DefaultMaxErrorRate is the false-positive probability above which a filter
// is considered too lossy to build.
const DefaultMaxErrorRate = 0.75

// DefaultDispatchQueueSize bounds the async dispatcher's backlog. A full
// queue drops updates rather than blocking producer threads.
const DefaultDispatchQueueSize = 64

type options struct {
	filterSizeBytes   int64
	maxErrorRate      float64
	mode              Mode
	arrivalTimeout    time.Duration
	pollInterval      time.Duration
	logger            *Logger
	metrics           MetricsCollector
	sender            Sender
	dispatchQueueSize int
	dispatchPerSec    float64
	compression       wire.CompressionType
}

// Option configures Bank construction.
type Option func(*options)

func defaultOptions() options {
	return options{
		filterSizeBytes:   bloom.DefaultFilterBytes,
		maxErrorRate:      DefaultMaxErrorRate,
		mode:              ModeLocal,
		arrivalTimeout:    DefaultArrivalTimeout,
		pollInterval:      defaultPollInterval,
		logger:            NoopLogger(),
		metrics:           NoopMetricsCollector{},
		dispatchQueueSize: DefaultDispatchQueueSize,
		compression:       wire.CompressionLZ4,
	}
}

// WithFilterSize sets the target directory size in bytes for filters this
// bank builds. The value is clamped into
// [bloom.MinFilterBytes, bloom.MaxFilterBytes] and rounded up to the next
// power of two once, at construction.
func WithFilterSize(bytes int64) Option {
	return func(o *options) {
		o.filterSizeBytes = bytes
	}
}

// WithMaxErrorRate sets the false-positive probability beyond which
// ShouldDisableFilter reports true. Values outside (0, 1] are ignored.
func WithMaxErrorRate(rate float64) Option {
	return func(o *options) {
		if rate > 0 && rate <= 1 {
			o.maxErrorRate = rate
		}
	}
}

// WithMode sets the filter mode. ModeGlobal requires a Sender (see
// WithSender) for the cross-node half to do anything.
func WithMode(m Mode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithArrivalTimeout sets the shared query-relative deadline consumers wait
// against, measured from filter registration.
func WithArrivalTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.arrivalTimeout = d
		}
	}
}

// WithLogger configures structured logging. Pass nil to keep the default
// silent logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithSender configures the transport the async dispatcher hands updates to
// in ModeGlobal. The coordinator's in-process endpoint satisfies Sender
// directly; a networked deployment plugs its RPC client in here.
func WithSender(s Sender) Option {
	return func(o *options) {
		o.sender = s
	}
}

// WithDispatchQueueSize bounds the dispatcher backlog.
func WithDispatchQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.dispatchQueueSize = n
		}
	}
}

// WithDispatchRate paces coordinator updates to at most n per second, so a
// burst of completing builds cannot flood the coordinator. Zero means
// unpaced.
func WithDispatchRate(n float64) Option {
	return func(o *options) {
		if n >= 0 {
			o.dispatchPerSec = n
		}
	}
}

// WithCompression selects how filter directories are compressed for
// dispatch.
func WithCompression(ct wire.CompressionType) Option {
	return func(o *options) {
		o.compression = ct
	}
}
