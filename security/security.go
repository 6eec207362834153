// Package security defines the permission checker the storage core consults
// before mutating or exposing objects. Implementations live with the user
// management plugin, outside this module.
package security

import (
	"context"

	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

type Right uint32

const (
	RightReadAny Right = 1 << iota
	RightCreate
	RightEditOwned
	RightDeleteOwned
	RightEditAny
	RightDeleteAny
	RightCreateSubfolder
	RightFolderAccess
	RightFolderVisible
)

// Context answers permission questions for the identity bound to the request
// context. Checks return mapi.ErrNoAccess when the right is not granted.
type Context interface {
	CheckPermission(ctx context.Context, objectID mapi.ObjectID, right Right) error

	IsAdmin(ctx context.Context) bool
}

// AllowAll grants every right; used by tests and single-user deployments.
type AllowAll struct{}

func (AllowAll) CheckPermission(context.Context, mapi.ObjectID, Right) error {
	return nil
}

func (AllowAll) IsAdmin(context.Context) bool {
	return true
}
