// Package editor coordinates the host with the embedded editor surface:
// typed messages in, named commands out, and the per-note save pipeline
// with its debounce and sync reconciliation rules.
package editor

import (
	"encoding/json"
	"fmt"
)

// Message types the surface sends to the host.
const (
	TypeReady            = "editor:ready"
	TypeContentChanged   = "editor:content-changed"
	TypeTitleChanged     = "editor:title-changed"
	TypeSelectionChanged = "editor:selection-changed"
	TypeScrolled         = "editor:scrolled"
	TypeSaveRequested    = "editor:save"
	TypeNewNote          = "editor:new-note"
	TypeTagAdded         = "editor:tag-added"
	TypeTagRemoved       = "editor:tag-removed"
	TypeLink             = "editor:link"
	TypeCreateLink       = "editor:create-internal-link"
	TypeCopyText         = "editor:copy"
	TypePickAttachment   = "editor:pick-attachment"
	TypeAttachmentData   = "editor:attachment-data"
	TypePreviewMedia     = "editor:preview-media"
	TypeGoBack           = "editor:go-back"
	TypeGoForward        = "editor:go-forward"
	TypeShowTabs         = "editor:show-tabs"
	TypeTabFocus         = "editor:focus-tab"
	TypeFullscreen       = "editor:fullscreen"
	TypeUnlock           = "editor:unlock"

	// TypeStatus is a liveness probe; it carries no session id and is
	// exempt from the session-affinity guard.
	TypeStatus = "editor:status"

	// TypeResult resolves a pending Invoke by resolver id; it is
	// likewise exempt from the guard.
	TypeResult = "editor:result"
)

// Envelope is the wire form of a surface message. Value holds the
// type-specific payload, decoded on demand.
type Envelope struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"sessionId,omitempty"`
	TabID      int             `json:"tabId,omitempty"`
	ResolverID string          `json:"resolverId,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// Parse decodes a raw surface message.
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode editor message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("editor message missing type")
	}
	return env, nil
}

// ContentChange is the payload of TypeContentChanged.
type ContentChange struct {
	Content    string `json:"content"`
	IgnoreEdit bool   `json:"ignoreEdit,omitempty"` // programmatic change, not a user edit
}

// TitleChange is the payload of TypeTitleChanged.
type TitleChange struct {
	Title string `json:"title"`
}

// SelectionChange is the payload of TypeSelectionChanged.
type SelectionChange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// ScrollChange is the payload of TypeScrolled.
type ScrollChange struct {
	Top int `json:"top"`
}

// TagChange is the payload of TypeTagAdded and TypeTagRemoved.
type TagChange struct {
	Tag string `json:"tag"`
}

// LinkRequest is the payload of TypeLink; Href may be an internal
// note://<id>#<anchor> link or an external URL.
type LinkRequest struct {
	Href string `json:"href"`
}

// CreateLinkRequest is the payload of TypeCreateLink; Text is the
// selection the link will wrap.
type CreateLinkRequest struct {
	Text string `json:"text,omitempty"`
}

// CopyRequest is the payload of TypeCopyText.
type CopyRequest struct {
	Text string `json:"text"`
}

// AttachmentRequest is the payload of TypeAttachmentData and
// TypePreviewMedia.
type AttachmentRequest struct {
	Hash string `json:"hash"`
}

// TabFocusRequest is the payload of TypeTabFocus.
type TabFocusRequest struct {
	TabID int `json:"tabId"`
}

// UnlockRequest is the payload of TypeUnlock.
type UnlockRequest struct {
	NoteID string `json:"noteId"`
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("empty message payload")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode message payload: %w", err)
	}
	return v, nil
}
