package mapi

// ChangeType classifies one change record: what happened, crossed with the
// scope it happened in (message, folder or address book).
type ChangeType uint32

const (
	ChangeMessageChange     ChangeType = 0x0001
	ChangeMessageFlags      ChangeType = 0x0002
	ChangeMessageSoftDelete ChangeType = 0x0004
	ChangeMessageHardDelete ChangeType = 0x0008
	ChangeMessageNew        ChangeType = 0x0010

	ChangeFolderChange     ChangeType = 0x0020
	ChangeFolderSoftDelete ChangeType = 0x0040
	ChangeFolderHardDelete ChangeType = 0x0080
	ChangeFolderNew        ChangeType = 0x0100

	ChangeABChange ChangeType = 0x0200
	ChangeABDelete ChangeType = 0x0400
	ChangeABNew    ChangeType = 0x0800
)

const (
	changeMessageMask = ChangeMessageChange | ChangeMessageFlags | ChangeMessageSoftDelete | ChangeMessageHardDelete | ChangeMessageNew
	changeFolderMask  = ChangeFolderChange | ChangeFolderSoftDelete | ChangeFolderHardDelete | ChangeFolderNew
	changeABMask      = ChangeABChange | ChangeABDelete | ChangeABNew
)

func (t ChangeType) IsMessage() bool {
	return t&changeMessageMask != 0
}

func (t ChangeType) IsFolder() bool {
	return t&changeFolderMask != 0
}

func (t ChangeType) IsAB() bool {
	return t&changeABMask != 0
}

func (t ChangeType) IsNew() bool {
	return t&(ChangeMessageNew|ChangeFolderNew|ChangeABNew) != 0
}

func (t ChangeType) IsSoftDelete() bool {
	return t&(ChangeMessageSoftDelete|ChangeFolderSoftDelete) != 0
}

func (t ChangeType) IsHardDelete() bool {
	return t&(ChangeMessageHardDelete|ChangeFolderHardDelete|ChangeABDelete) != 0
}

func (t ChangeType) IsDelete() bool {
	return t.IsSoftDelete() || t.IsHardDelete()
}

// Valid reports whether exactly one change bit is set.
func (t ChangeType) Valid() bool {
	return t != 0 && t&(t-1) == 0 && t&(changeMessageMask|changeFolderMask|changeABMask) == t
}

type SyncType uint8

const (
	SyncContents SyncType = iota + 1
	SyncHierarchy
	SyncAddressBook
)

func (t SyncType) Valid() bool {
	return t >= SyncContents && t <= SyncAddressBook
}

func (t SyncType) String() string {
	switch t {
	case SyncContents:
		return "contents"
	case SyncHierarchy:
		return "hierarchy"
	case SyncAddressBook:
		return "addressbook"
	default:
		return "unknown"
	}
}

// SyncFlags adjust what get-changes reports to a cursor.
type SyncFlags uint32

const (
	SyncFlagNormal SyncFlags = 1 << iota
	SyncFlagAssociated
	SyncFlagNoDeletions
	SyncFlagNoSoftDeletions
	SyncFlagReadState
)

func (f SyncFlags) Has(flag SyncFlags) bool {
	return f&flag != 0
}
