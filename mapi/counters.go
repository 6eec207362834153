package mapi

// CounterKind names one of the denormalized per-folder counters. Each is
// stored as an ordinary property on the folder object and mirrored into the
// parent's table-property row.
type CounterKind int

const (
	CounterContents CounterKind = iota
	CounterAssocContents
	CounterUnread
	CounterDeletedMessages
	CounterDeletedAssocMessages
	CounterSubfolders
	CounterDeletedFolders

	NumCounterKinds
)

func (k CounterKind) Tag() PropTag {
	switch k {
	case CounterContents:
		return PropTagContentCount
	case CounterAssocContents:
		return PropTagAssocContentCount
	case CounterUnread:
		return PropTagContentUnread
	case CounterDeletedMessages:
		return PropTagDeletedMsgCount
	case CounterDeletedAssocMessages:
		return PropTagDeletedAssocMsgCount
	case CounterSubfolders:
		return PropTagFolderChildCount
	case CounterDeletedFolders:
		return PropTagDeletedFolderCount
	default:
		panic("unknown counter kind")
	}
}

func (k CounterKind) String() string {
	switch k {
	case CounterContents:
		return "contents"
	case CounterAssocContents:
		return "assoc-contents"
	case CounterUnread:
		return "unread"
	case CounterDeletedMessages:
		return "deleted-messages"
	case CounterDeletedAssocMessages:
		return "deleted-assoc-messages"
	case CounterSubfolders:
		return "subfolders"
	case CounterDeletedFolders:
		return "deleted-folders"
	default:
		return "unknown"
	}
}

// CounterDeltas accumulates per-folder counter adjustments so a bulk
// operation can apply them in one go.
type CounterDeltas [NumCounterKinds]int32

func (d *CounterDeltas) Add(kind CounterKind, delta int32) {
	d[kind] += delta
}

func (d CounterDeltas) IsZero() bool {
	for _, v := range d {
		if v != 0 {
			return false
		}
	}

	return true
}

func (d *CounterDeltas) Merge(other CounterDeltas) {
	for kind, delta := range other {
		d[kind] += delta
	}
}
