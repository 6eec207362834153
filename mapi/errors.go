package mapi

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidType      = errors.New("invalid type")
	ErrNoAccess         = errors.New("no access")
	ErrCollision        = errors.New("collision")

	ErrHasMessages    = errors.New("object has messages")
	ErrHasFolders     = errors.New("object has folders")
	ErrHasRecipients  = errors.New("object has recipients")
	ErrHasAttachments = errors.New("object has attachments")
)
