package db

import (
	"fmt"
	"time"

	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

// Object is one hierarchy row. ParentID is zero only for stores.
type Object struct {
	ID       mapi.ObjectID
	ParentID mapi.ObjectID
	Type     mapi.ObjectType
	OwnerID  uint32
	Flags    mapi.ObjectFlags
}

func (o *Object) String() string {
	return fmt.Sprintf("%v(%v)", o.Type, o.ID)
}

// Property is one row-store property. Exactly one of the value fields is
// meaningful, selected by the tag's property type.
type Property struct {
	ObjectID mapi.ObjectID
	Tag      mapi.PropTag
	ValueInt int64
	ValueStr string
	ValueBin []byte
}

func NewIntProperty(id mapi.ObjectID, tag mapi.PropTag, value int64) Property {
	return Property{ObjectID: id, Tag: tag, ValueInt: value}
}

func NewBinaryProperty(id mapi.ObjectID, tag mapi.PropTag, value []byte) Property {
	return Property{ObjectID: id, Tag: tag, ValueBin: value}
}

func NewTimeProperty(id mapi.ObjectID, tag mapi.PropTag, value time.Time) Property {
	return Property{ObjectID: id, Tag: tag, ValueInt: value.UnixNano()}
}

// Change is one row of the change table (or of the address book change
// table, which has the same shape).
type Change struct {
	ID              uint64
	SourceKey       mapi.SourceKey
	ParentSourceKey mapi.SourceKey
	Type            mapi.ChangeType
	Flags           uint32
	OriginSyncID    uint32
	RecordedAt      time.Time
}

// SyncState is a client cursor into the change log.
type SyncState struct {
	SyncID        uint32
	RootSourceKey mapi.SourceKey
	LastChangeID  uint64
	Type          mapi.SyncType
}

// SyncedMessage records, per cursor, one message believed present on the
// client owning that cursor.
type SyncedMessage struct {
	SyncID          uint32
	ChangeID        uint64
	SourceKey       mapi.SourceKey
	ParentSourceKey mapi.SourceKey
}
