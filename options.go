package watchkit

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/watchkit/watchkit/internal/hostquirks"
)

// AtomicOptions configures atomic-save collapsing: an unlink immediately
// followed by an add for the same path is reported as a single change.
type AtomicOptions struct {
	Enabled bool
	Delay   time.Duration // how long to hold an unlink waiting for a matching add
}

// DefaultAtomicDelay is used when AtomicOptions.Enabled is true but Delay is
// zero.
const DefaultAtomicDelay = 50 * time.Millisecond

// AwaitWriteFinish configures the write-settle tracker: add/change emission
// for a path is held back until its size has been stable for
// StabilityThreshold, checked every PollInterval.
type AwaitWriteFinish struct {
	Enabled            bool
	StabilityThreshold time.Duration
	PollInterval       time.Duration
}

// Options is the single configuration structure for a Watcher. New only
// accepts Option funcs that set fields on this type, so there is no such
// thing as an unrecognized option.
type Options struct {
	Persistent             bool
	IgnoreInitial          bool
	Ignored                []string
	FollowSymlinks         bool
	Cwd                    string
	Depth                  int // <=0 means unbounded
	DisableGlobbing        bool
	UsePolling             bool
	Interval               time.Duration
	BinaryInterval         time.Duration
	BinaryExtra            []string
	AlwaysStat             bool
	Atomic                 AtomicOptions
	AwaitWriteFinish       AwaitWriteFinish
	IgnorePermissionErrors bool
	ExpansionLimit         int
	ConsolidateThreshold   int // sibling watches under one parent coalesce past this count
	Logger                 zerolog.Logger
}

// Option mutates an Options value; New applies them in order over the
// defaults.
type Option func(*Options)

// DefaultOptions returns the defaults New starts from before applying
// Option funcs.
func DefaultOptions() Options {
	return Options{
		Persistent:           true,
		Interval:             100 * time.Millisecond,
		BinaryInterval:       300 * time.Millisecond,
		ExpansionLimit:       1000,
		ConsolidateThreshold: 10,
		Logger:               zerolog.Nop(),
	}
}

func WithIgnoreInitial(v bool) Option          { return func(o *Options) { o.IgnoreInitial = v } }
func WithIgnored(patterns ...string) Option    { return func(o *Options) { o.Ignored = append(o.Ignored, patterns...) } }
func WithFollowSymlinks(v bool) Option         { return func(o *Options) { o.FollowSymlinks = v } }
func WithCwd(cwd string) Option                { return func(o *Options) { o.Cwd = cwd } }
func WithDepth(depth int) Option               { return func(o *Options) { o.Depth = depth } }
func WithDisableGlobbing(v bool) Option        { return func(o *Options) { o.DisableGlobbing = v } }
func WithPolling(v bool) Option                { return func(o *Options) { o.UsePolling = v } }
func WithInterval(d time.Duration) Option      { return func(o *Options) { o.Interval = d } }
func WithBinaryInterval(d time.Duration) Option {
	return func(o *Options) { o.BinaryInterval = d }
}
func WithBinaryExtensions(ext ...string) Option {
	return func(o *Options) { o.BinaryExtra = append(o.BinaryExtra, ext...) }
}
func WithAlwaysStat(v bool) Option { return func(o *Options) { o.AlwaysStat = v } }
func WithAtomic(delay time.Duration) Option {
	return func(o *Options) {
		o.Atomic = AtomicOptions{Enabled: true, Delay: delay}
	}
}
func WithAwaitWriteFinish(stability, poll time.Duration) Option {
	return func(o *Options) {
		o.AwaitWriteFinish = AwaitWriteFinish{Enabled: true, StabilityThreshold: stability, PollInterval: poll}
	}
}
func WithIgnorePermissionErrors(v bool) Option {
	return func(o *Options) { o.IgnorePermissionErrors = v }
}
func WithExpansionLimit(n int) Option { return func(o *Options) { o.ExpansionLimit = n } }

// WithLogger wires a zerolog.Logger into the orchestrator and all three
// backends for debug-level event tracing. The default is zerolog.Nop(), so
// the library is silent unless a logger is explicitly supplied.
func WithLogger(l zerolog.Logger) Option { return func(o *Options) { o.Logger = l } }
func WithPersistent(v bool) Option       { return func(o *Options) { o.Persistent = v } }

func (o Options) binarySet() *hostquirks.BinarySet {
	return hostquirks.NewBinarySet(o.BinaryExtra...)
}
