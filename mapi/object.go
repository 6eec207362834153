package mapi

import "strconv"

// ObjectID is the server-local surrogate id of a hierarchy row. It is
// allocated by the database and never reused, but it is not stable across
// replicas; synchronization uses SourceKeys instead.
type ObjectID uint64

func (i ObjectID) String() string {
	return strconv.FormatUint(uint64(i), 10)
}

type ObjectType uint8

const (
	ObjectTypeStore ObjectType = iota + 1
	ObjectTypeFolder
	ObjectTypeMessage
	ObjectTypeAttachment
	ObjectTypeRecipient
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypeStore:
		return "store"
	case ObjectTypeFolder:
		return "folder"
	case ObjectTypeMessage:
		return "message"
	case ObjectTypeAttachment:
		return "attachment"
	case ObjectTypeRecipient:
		return "recipient"
	default:
		return "unknown"
	}
}

func (t ObjectType) Valid() bool {
	return t >= ObjectTypeStore && t <= ObjectTypeRecipient
}

// ObjectFlags is the flag bitset stored on a hierarchy row.
type ObjectFlags uint32

const (
	ObjectFlagDeleted ObjectFlags = 1 << iota
	ObjectFlagAssociated
	ObjectFlagSearchFolder
)

func (f ObjectFlags) Has(flag ObjectFlags) bool {
	return f&flag != 0
}

// MessageFlags mirrors the PR_MESSAGE_FLAGS property value.
type MessageFlags uint32

const (
	MsgFlagRead      MessageFlags = 0x0001
	MsgFlagUnmodifed MessageFlags = 0x0002
	MsgFlagSubmit    MessageFlags = 0x0004
	MsgFlagUnsent    MessageFlags = 0x0008
	MsgFlagFromMe    MessageFlags = 0x0020
	MsgFlagAssoc     MessageFlags = 0x0040
)

func (f MessageFlags) Has(flag MessageFlags) bool {
	return f&flag != 0
}
