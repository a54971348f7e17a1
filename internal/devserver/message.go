package devserver

import (
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// MessageKind identifies a push message.
type MessageKind string

const (
	KindStyleUpdate  MessageKind = "style-update"
	KindScriptUpdate MessageKind = "script-update"
	KindFullReload   MessageKind = "full-reload"
	KindBuildError   MessageKind = "build-error"
)

// Message is pushed to clients after every generation that changed output
// or failed.
type Message struct {
	Kind       MessageKind `json:"kind"`
	Payload    any         `json:"payload,omitempty"`
	Generation uint64      `json:"generation"`
}

// UpdatePayload lists the artifact files a client should fetch again.
type UpdatePayload struct {
	Files []string `json:"files"`
	// Removed lists files of the previous build that no longer exist, so a
	// client can swap a renamed stylesheet in place.
	Removed []string `json:"removed,omitempty"`
}

// ErrorPayload is the payload of a build-error message.
type ErrorPayload = ferrors.HTTPErrorResponse
