package mapi

// DeleteFlags select what a delete request may cascade into and how the
// removal is performed.
type DeleteFlags uint32

const (
	DeleteFolders DeleteFlags = 1 << iota
	DeleteMessages
	DeleteRecipients
	DeleteAttachments
	// DeleteContainer removes the root objects themselves, not only their
	// contents.
	DeleteContainer
	HardDelete
	DeleteStore
	SkipAssociated
)

func (f DeleteFlags) Has(flag DeleteFlags) bool {
	return f&flag != 0
}
