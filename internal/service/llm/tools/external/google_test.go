package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDriveQuery(t *testing.T) {
	tests := []struct {
		name string
		q    DriveQuery
		want string
	}{
		{"empty", DriveQuery{}, "trashed = false"},
		{"name and type", DriveQuery{NameContains: "Marketing", MimeType: MimeTypeFolder},
			"trashed = false and name contains 'Marketing' and mimeType = 'application/vnd.google-apps.folder'"},
		{"parent", DriveQuery{ParentID: "abc"}, "trashed = false and 'abc' in parents"},
		{"quotes escaped", DriveQuery{NameContains: `Bob's \ plan`}, `trashed = false and name contains 'Bob\'s \\ plan'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildDriveQuery(tt.q))
		})
	}
}

func TestStaticTokenProvider(t *testing.T) {
	_, err := NewStaticTokenProvider("").TokenSource(context.Background(), "u")
	assert.Error(t, err)

	ts, err := NewStaticTokenProvider("tok").TokenSource(context.Background(), "u")
	assert.NoError(t, err)
	tok, err := ts.Token()
	assert.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)
}
