package kopano

import (
	"time"

	"github.com/Kopano-dev/kopano-core-sub010/async"
	"github.com/Kopano-dev/kopano-core-sub010/reporter"
	"github.com/Kopano-dev/kopano-core-sub010/security"
	"github.com/Kopano-dev/kopano-core-sub010/store"
	"github.com/google/uuid"
)

// Option represents a type that can be used to configure the server.
type Option interface {
	config(builder *serverBuilder)
}

// WithDataDir instructs the server to store its database and attachment
// files in the given directory instead of a temporary one.
func WithDataDir(dir string) Option {
	return &withDataDir{
		dir: dir,
	}
}

type withDataDir struct {
	dir string
}

func (opt withDataDir) config(builder *serverBuilder) {
	builder.dir = opt.dir
}

// WithReplicaID sets the GUID this server stamps into the source keys and
// change keys it mints. It must stay stable across restarts for replicas to
// recognize this server's changes.
func WithReplicaID(replica uuid.UUID) Option {
	return &withReplicaID{
		replica: replica,
	}
}

type withReplicaID struct {
	replica uuid.UUID
}

func (opt withReplicaID) config(builder *serverBuilder) {
	builder.replica = opt.replica
}

// WithDeleteBatchSize bounds how many items one hard-delete transaction
// removes.
func WithDeleteBatchSize(size int) Option {
	return &withDeleteBatchSize{
		size: size,
	}
}

type withDeleteBatchSize struct {
	size int
}

func (opt withDeleteBatchSize) config(builder *serverBuilder) {
	builder.batchSize = opt.size
}

// WithCoalesceThreshold sets the per-folder notification count above which
// individual table-row events collapse into one table-changed event.
func WithCoalesceThreshold(threshold int) Option {
	return &withCoalesceThreshold{
		threshold: threshold,
	}
}

type withCoalesceThreshold struct {
	threshold int
}

func (opt withCoalesceThreshold) config(builder *serverBuilder) {
	builder.coalesceThreshold = opt.threshold
}

// WithRetention configures how old change rows must be before the retention
// sweep may remove them, and how often the sweep runs.
func WithRetention(age, interval time.Duration) Option {
	return &withRetention{
		age:      age,
		interval: interval,
	}
}

type withRetention struct {
	age      time.Duration
	interval time.Duration
}

func (opt withRetention) config(builder *serverBuilder) {
	builder.retentionAge = opt.age
	builder.retentionInterval = opt.interval
}

// WithStoreBuilder instructs the server to use the given builder to
// construct its attachment store.
func WithStoreBuilder(storeBuilder store.Builder) Option {
	return &withStoreBuilder{
		storeBuilder: storeBuilder,
	}
}

type withStoreBuilder struct {
	storeBuilder store.Builder
}

func (opt withStoreBuilder) config(builder *serverBuilder) {
	builder.storeBuilder = opt.storeBuilder
}

// WithStorePassphrase sets the passphrase the attachment store derives its
// encryption key from.
func WithStorePassphrase(passphrase []byte) Option {
	return &withStorePassphrase{
		passphrase: passphrase,
	}
}

type withStorePassphrase struct {
	passphrase []byte
}

func (opt withStorePassphrase) config(builder *serverBuilder) {
	builder.passphrase = opt.passphrase
}

// WithSecurityContext attaches the permission checker consulted before any
// object is exposed or mutated.
func WithSecurityContext(secCtx security.Context) Option {
	return &withSecurityContext{
		secCtx: secCtx,
	}
}

type withSecurityContext struct {
	secCtx security.Context
}

func (opt withSecurityContext) config(builder *serverBuilder) {
	builder.secCtx = opt.secCtx
}

// WithDirectory attaches the directory scope used by address book sync.
func WithDirectory(directory Directory) Option {
	return &withDirectory{
		directory: directory,
	}
}

type withDirectory struct {
	directory Directory
}

func (opt withDirectory) config(builder *serverBuilder) {
	builder.directory = opt.directory
}

// WithReporter instructs the server to report anomalies to the given
// reporter.
func WithReporter(reporter reporter.Reporter) Option {
	return &withReporter{
		reporter: reporter,
	}
}

type withReporter struct {
	reporter reporter.Reporter
}

func (opt withReporter) config(builder *serverBuilder) {
	builder.reporter = opt.reporter
}

// WithPanicHandler instructs the server to handle background goroutine
// panics with the given handler.
func WithPanicHandler(panicHandler async.PanicHandler) Option {
	return &withPanicHandler{
		panicHandler: panicHandler,
	}
}

type withPanicHandler struct {
	panicHandler async.PanicHandler
}

func (opt withPanicHandler) config(builder *serverBuilder) {
	builder.panicHandler = opt.panicHandler
}
