package content

import "context"

// ContentStore reads and writes file text.
// WriteFileContent is only called when an approval is applied; tool handlers read.
type ContentStore interface {
	// ReadFileContent returns the current text of a file
	// Returns domain.ErrNotFound if the file does not exist
	ReadFileContent(ctx context.Context, fileID string) (string, error)

	// WriteFileContent replaces (or creates) a file's text
	WriteFileContent(ctx context.Context, fileID, text string) error
}
