package external

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// TokenProvider resolves a user's linked Google credentials.
// Account linking itself lives outside this service.
type TokenProvider interface {
	TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error)
}

// StaticTokenProvider serves one access token for every user (local development).
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider creates a provider for a fixed access token.
func NewStaticTokenProvider(accessToken string) *StaticTokenProvider {
	return &StaticTokenProvider{token: accessToken}
}

func (p *StaticTokenProvider) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	if p.token == "" {
		return nil, errors.New("no Google account linked")
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.token, TokenType: "Bearer"}), nil
}

const driveFileFields = "id,name,mimeType,parents,modifiedTime,webViewLink"

// GoogleDrive implements DriveClient with the Drive v3 API.
type GoogleDrive struct {
	tokens TokenProvider
	opts   []option.ClientOption // extra options, e.g. endpoint overrides in tests
}

// NewGoogleDrive creates a Drive client.
func NewGoogleDrive(tokens TokenProvider, opts ...option.ClientOption) *GoogleDrive {
	return &GoogleDrive{tokens: tokens, opts: opts}
}

func (d *GoogleDrive) service(ctx context.Context, userID string) (*drive.Service, error) {
	ts, err := d.tokens.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, d.opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return srv, nil
}

// Search implements DriveClient.
func (d *GoogleDrive) Search(ctx context.Context, userID string, q DriveQuery) ([]DriveFile, error) {
	srv, err := d.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	call := srv.Files.List().
		Q(BuildDriveQuery(q)).
		Fields("files(" + driveFileFields + ")").
		OrderBy("modifiedTime desc").
		Context(ctx)
	if q.MaxResults > 0 {
		call = call.PageSize(int64(q.MaxResults))
	}

	list, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("drive search: %w", err)
	}

	files := make([]DriveFile, 0, len(list.Files))
	for _, f := range list.Files {
		files = append(files, fromDriveFile(f))
	}
	return files, nil
}

// GetFile implements DriveClient.
func (d *GoogleDrive) GetFile(ctx context.Context, userID, fileID string) (*DriveFile, error) {
	srv, err := d.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	f, err := srv.Files.Get(fileID).Fields(driveFileFields).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("drive get %s: %w", fileID, err)
	}
	out := fromDriveFile(f)
	return &out, nil
}

// CopyFile implements DriveClient.
func (d *GoogleDrive) CopyFile(ctx context.Context, userID, fileID, folderID, name string) (*DriveFile, error) {
	srv, err := d.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	target := &drive.File{Parents: []string{folderID}}
	if name != "" {
		target.Name = name
	}
	f, err := srv.Files.Copy(fileID, target).Fields(driveFileFields).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("drive copy %s: %w", fileID, err)
	}
	out := fromDriveFile(f)
	return &out, nil
}

func fromDriveFile(f *drive.File) DriveFile {
	return DriveFile{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Parents:      f.Parents,
		ModifiedTime: f.ModifiedTime,
		WebViewLink:  f.WebViewLink,
	}
}

// BuildDriveQuery renders a Drive search expression. Trashed files are excluded.
func BuildDriveQuery(q DriveQuery) string {
	clauses := []string{"trashed = false"}
	if q.NameContains != "" {
		clauses = append(clauses, fmt.Sprintf("name contains '%s'", escapeDriveValue(q.NameContains)))
	}
	if q.MimeType != "" {
		clauses = append(clauses, fmt.Sprintf("mimeType = '%s'", escapeDriveValue(q.MimeType)))
	}
	if q.ParentID != "" {
		clauses = append(clauses, fmt.Sprintf("'%s' in parents", escapeDriveValue(q.ParentID)))
	}
	return strings.Join(clauses, " and ")
}

func escapeDriveValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// GoogleCalendar implements CalendarClient with the Calendar v3 API.
type GoogleCalendar struct {
	tokens     TokenProvider
	calendarID string
	opts       []option.ClientOption
}

// NewGoogleCalendar creates a client for the user's primary calendar.
func NewGoogleCalendar(tokens TokenProvider, opts ...option.ClientOption) *GoogleCalendar {
	return &GoogleCalendar{tokens: tokens, calendarID: "primary", opts: opts}
}

// ListEvents implements CalendarClient.
func (c *GoogleCalendar) ListEvents(ctx context.Context, userID string, q EventQuery) ([]CalendarEvent, error) {
	ts, err := c.tokens.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	call := srv.Events.List(c.calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(q.TimeMin.Format(time.RFC3339)).
		TimeMax(q.TimeMax.Format(time.RFC3339)).
		Context(ctx)
	if q.Text != "" {
		call = call.Q(q.Text)
	}
	if q.MaxResults > 0 {
		call = call.MaxResults(int64(q.MaxResults))
	}

	events, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("calendar list: %w", err)
	}

	out := make([]CalendarEvent, 0, len(events.Items))
	for _, e := range events.Items {
		ev := CalendarEvent{
			ID:          e.Id,
			Summary:     e.Summary,
			Description: e.Description,
			Location:    e.Location,
			Start:       eventTime(e.Start),
			End:         eventTime(e.End),
			Link:        e.HtmlLink,
		}
		for _, a := range e.Attendees {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
		out = append(out, ev)
	}
	return out, nil
}

// eventTime prefers the timed value; all-day events only carry a date.
func eventTime(t *calendar.EventDateTime) string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}
