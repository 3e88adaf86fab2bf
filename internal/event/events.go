package event

// Event names published by the tab store, editor router, and session
// controller. Any component may subscribe; the router additionally
// re-broadcasts every inbound editor message under its own type string.
const (
	// LoadNote asks the editor session controller to load a note.
	// Payload: editor.LoadRequest (or the tabs.Session being restored).
	LoadNote = "editor:load-note"

	// ClearEditor asks the controller to reset the active editing session.
	ClearEditor = "editor:clear"

	// NoteLoaded fires after content has been pushed to the surface.
	// Payload: note ID.
	NoteLoaded = "editor:note-loaded"

	// NoteCreated fires after a first save materializes a new note.
	// Payload: note ID.
	NoteCreated = "notes:created"

	// NotesChanged asks list views to refresh. Payload: nil.
	NotesChanged = "notes:changed"

	// TabFocused fires when the current tab changes. Payload: tab ID.
	TabFocused = "tabs:focused"

	// TabsChanged fires on any tab list mutation. Payload: nil.
	TabsChanged = "tabs:changed"

	// ShowTabs asks the host UI to present the tab switcher. Payload: nil.
	ShowTabs = "tabs:show"

	// FullscreenToggled reports the surface toggled fullscreen.
	// Payload: the editor message envelope.
	FullscreenToggled = "editor:fullscreen"

	// VaultUnlockRequired asks the host to run the unlock flow.
	// Payload: note ID.
	VaultUnlockRequired = "vault:unlock-required"

	// AttachmentPreview asks the host to preview an attachment.
	// Payload: attachment hash.
	AttachmentPreview = "attachments:preview"

	// AttachmentPick asks the host to run the file picker for an
	// attachment insert. Payload: tab ID.
	AttachmentPick = "attachments:pick"

	// LinkPick asks the host to run the note picker for an internal
	// link insert. Payload: tab ID.
	LinkPick = "links:pick"

	// SyncApplied fires after a sync item has been reconciled into the
	// open editor. Payload: note ID.
	SyncApplied = "sync:applied"
)
