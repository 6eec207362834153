package kopano

import (
	"context"
	"os"
	"time"

	"github.com/Kopano-dev/kopano-core-sub010/async"
	"github.com/Kopano-dev/kopano-core-sub010/events"
	"github.com/Kopano-dev/kopano-core-sub010/internal/cascade"
	"github.com/Kopano-dev/kopano-core-sub010/internal/counters"
	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl"
	"github.com/Kopano-dev/kopano-core-sub010/internal/ics"
	"github.com/Kopano-dev/kopano-core-sub010/internal/props"
	"github.com/Kopano-dev/kopano-core-sub010/internal/skindex"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/reporter"
	"github.com/Kopano-dev/kopano-core-sub010/security"
	"github.com/Kopano-dev/kopano-core-sub010/store"
	"github.com/Kopano-dev/kopano-core-sub010/watcher"
	"github.com/google/uuid"
)

type serverBuilder struct {
	dir               string
	dbName            string
	replica           uuid.UUID
	passphrase        []byte
	batchSize         int
	coalesceThreshold int
	retentionAge      time.Duration
	retentionInterval time.Duration
	storeBuilder      store.Builder
	secCtx            security.Context
	directory         ics.Directory
	reporter          reporter.Reporter
	panicHandler      async.PanicHandler
}

func newBuilder() (*serverBuilder, error) {
	return &serverBuilder{
		dbName:            "kopano",
		replica:           uuid.New(),
		passphrase:        []byte("kopano"),
		batchSize:         cascade.DefaultBatchSize,
		coalesceThreshold: cascade.DefaultCoalesceThreshold,
		retentionAge:      30 * 24 * time.Hour,
		retentionInterval: time.Hour,
		storeBuilder:      &store.OnDiskStoreBuilder{},
		secCtx:            security.AllowAll{},
		directory:         nullDirectory{},
		reporter:          &reporter.NullReporter{},
		panicHandler:      async.NoopPanicHandler{},
	}, nil
}

func (builder *serverBuilder) build() (*Server, error) {
	if builder.dir == "" {
		dir, err := os.MkdirTemp("", "kopano-*")
		if err != nil {
			return nil, err
		}

		builder.dir = dir
	}

	if err := os.MkdirAll(builder.dir, 0o700); err != nil {
		return nil, err
	}

	client, _, err := db_impl.NewSQLiteDB(builder.dir, builder.dbName)
	if err != nil {
		return nil, err
	}

	ctx := reporter.NewContextWithReporter(context.Background(), builder.reporter)

	if err := client.Init(ctx); err != nil {
		return nil, err
	}

	blobs, err := builder.storeBuilder.New(builder.dir, "attachments", builder.passphrase)
	if err != nil {
		return nil, err
	}

	propStore := props.NewStore()
	index := skindex.NewIndex(builder.replica)
	folderCounters := counters.New(propStore)
	changeLog := ics.NewChangeLog(client, index, propStore, builder.secCtx, builder.directory)

	server := &Server{
		dir:          builder.dir,
		client:       client,
		index:        index,
		props:        propStore,
		counters:     folderCounters,
		changeLog:    changeLog,
		blobs:        blobs,
		security:     builder.secCtx,
		reporter:     builder.reporter,
		panicHandler: builder.panicHandler,
		sweeper:      ics.NewSweeper(client, builder.retentionAge, builder.retentionInterval, builder.panicHandler),
		watchers:     make(map[*watcher.Watcher[events.Event]]struct{}),
	}

	deleteCascade := cascade.New(client, index, folderCounters, propStore, builder.secCtx, changeLog, blobs, server)
	deleteCascade.SetBatchSize(builder.batchSize)
	deleteCascade.SetCoalesceThreshold(builder.coalesceThreshold)

	server.cascade = deleteCascade

	return server, nil
}

// nullDirectory is the directory scope used when no user management plugin
// is attached: nothing is visible, everything is in scope.
type nullDirectory struct{}

func (nullDirectory) VisibleObjects(context.Context) ([]mapi.SourceKey, error) {
	return nil, nil
}

func (nullDirectory) InScope(context.Context, mapi.SourceKey) (bool, error) {
	return true, nil
}
