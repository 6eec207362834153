package mapi

import "fmt"

// PropTag is a MAPI property tag: property id in the high word, property
// type in the low word.
type PropTag uint32

const (
	PropTypeLong     = 0x0003
	PropTypeInt64    = 0x0014
	PropTypeBoolean  = 0x000B
	PropTypeString   = 0x001F
	PropTypeSystime  = 0x0040
	PropTypeBinary   = 0x0102
	PropTypeMVBinary = 0x1102
)

const (
	PropTagMessageFlags          PropTag = 0x0E070003
	PropTagMessageSize           PropTag = 0x0E080003
	PropTagMessageSizeExtended   PropTag = 0x0E080014
	PropTagContentCount          PropTag = 0x36020003
	PropTagContentUnread         PropTag = 0x36030003
	PropTagAssocContentCount     PropTag = 0x36170003
	PropTagSourceKey             PropTag = 0x65E00102
	PropTagParentSourceKey       PropTag = 0x65E10102
	PropTagChangeKey             PropTag = 0x65E20102
	PropTagPredecessorChangeList PropTag = 0x65E30102
	PropTagFolderChildCount      PropTag = 0x66380003
	PropTagDeletedMsgCount       PropTag = 0x66400003
	PropTagDeletedFolderCount    PropTag = 0x66410003
	PropTagDeletedAssocMsgCount  PropTag = 0x66430003
	PropTagDeletedOn             PropTag = 0x668F0040
	PropTagLocalCommitTimeMax    PropTag = 0x670A0040
)

func (t PropTag) ID() uint16 {
	return uint16(t >> 16)
}

func (t PropTag) Type() uint16 {
	return uint16(t & 0xFFFF)
}

func (t PropTag) String() string {
	return fmt.Sprintf("0x%08X", uint32(t))
}
