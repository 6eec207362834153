package db

type ReadOnly interface {
	ObjectReadOps
	PropertyReadOps
	IndexedReadOps
	ChangeReadOps
	SyncReadOps
}

type Transaction interface {
	ReadOnly
	ObjectWriteOps
	PropertyWriteOps
	IndexedWriteOps
	ChangeWriteOps
	SyncWriteOps
}
