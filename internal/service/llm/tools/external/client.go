package external

import (
	"context"
	"time"
)

// DriveClient defines the Google Drive operations the tools need.
// Calls are made on behalf of userID using that user's linked account.
type DriveClient interface {
	// Search lists files matching the query
	Search(ctx context.Context, userID string, q DriveQuery) ([]DriveFile, error)

	// GetFile returns metadata for one file
	GetFile(ctx context.Context, userID, fileID string) (*DriveFile, error)

	// CopyFile copies a file into a folder. Only called when an approval is applied.
	CopyFile(ctx context.Context, userID, fileID, folderID, name string) (*DriveFile, error)
}

// DriveQuery configures a Drive search.
type DriveQuery struct {
	NameContains string
	MimeType     string // exact Drive mime type; empty = any
	ParentID     string // restrict to direct children of a folder
	MaxResults   int
}

// DriveFile is a Drive file's metadata.
type DriveFile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mime_type"`
	Parents      []string `json:"parents,omitempty"`
	ModifiedTime string   `json:"modified_time,omitempty"`
	WebViewLink  string   `json:"web_view_link,omitempty"`
}

// Drive mime types
const (
	MimeTypeFolder       = "application/vnd.google-apps.folder"
	MimeTypeDocument     = "application/vnd.google-apps.document"
	MimeTypeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypePresentation = "application/vnd.google-apps.presentation"
)

// CalendarClient defines the calendar lookups the tools need.
type CalendarClient interface {
	// ListEvents returns events in [q.TimeMin, q.TimeMax) ordered by start time
	ListEvents(ctx context.Context, userID string, q EventQuery) ([]CalendarEvent, error)
}

// EventQuery configures an event lookup.
type EventQuery struct {
	TimeMin    time.Time
	TimeMax    time.Time
	Text       string // free-text filter
	MaxResults int
}

// CalendarEvent is a single calendar event.
type CalendarEvent struct {
	ID          string   `json:"id"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Attendees   []string `json:"attendees,omitempty"`
	Link        string   `json:"link,omitempty"`
}
