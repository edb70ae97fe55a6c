package approval

import (
	"context"
	"fmt"

	models "council/internal/domain/models/approval"
	contentRepo "council/internal/domain/repositories/content"
	"council/internal/service/llm/tools/external"
)

// Applier performs an approved change. It runs inside the approval
// transaction; returning an error rolls the approval back to pending.
type Applier interface {
	Apply(ctx context.Context, record *models.DocumentApproval) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, record *models.DocumentApproval) error

func (f ApplierFunc) Apply(ctx context.Context, record *models.DocumentApproval) error {
	return f(ctx, record)
}

// ContentApplier writes ProposedContent to the file. Serves edit and create.
type ContentApplier struct {
	store contentRepo.ContentStore
}

// NewContentApplier creates a content applier.
func NewContentApplier(store contentRepo.ContentStore) *ContentApplier {
	return &ContentApplier{store: store}
}

func (a *ContentApplier) Apply(ctx context.Context, record *models.DocumentApproval) error {
	return a.store.WriteFileContent(ctx, record.FileID, record.ProposedContent)
}

// DriveCopyApplier copies a Drive file into the folder named in the payload.
// The copy is not transactional: if the approval commit fails after the copy,
// the copy remains in Drive.
type DriveCopyApplier struct {
	client external.DriveClient
}

// NewDriveCopyApplier creates a Drive copy applier.
func NewDriveCopyApplier(client external.DriveClient) *DriveCopyApplier {
	return &DriveCopyApplier{client: client}
}

func (a *DriveCopyApplier) Apply(ctx context.Context, record *models.DocumentApproval) error {
	folderID := record.PayloadString("folder_id")
	if folderID == "" {
		return fmt.Errorf("copy approval %s has no target folder", record.ID)
	}
	if _, err := a.client.CopyFile(ctx, record.UserID, record.FileID, folderID, record.PayloadString("name")); err != nil {
		return err
	}
	return nil
}

// RegisterDefaultAppliers wires the standard appliers. Either dependency may be nil.
func RegisterDefaultAppliers(g *Gate, store contentRepo.ContentStore, drive external.DriveClient) {
	if store != nil {
		content := NewContentApplier(store)
		g.RegisterApplier(models.ChangeTypeEdit, content)
		g.RegisterApplier(models.ChangeTypeCreate, content)
	}
	if drive != nil {
		g.RegisterApplier(models.ChangeTypeCopy, NewDriveCopyApplier(drive))
	}
}
