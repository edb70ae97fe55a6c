package tools

import (
	"context"
	"fmt"

	"council/internal/domain/models/approval"
	"council/internal/service/llm/tools/external"
)

var driveKinds = map[string]string{
	"folder":       external.MimeTypeFolder,
	"document":     external.MimeTypeDocument,
	"spreadsheet":  external.MimeTypeSpreadsheet,
	"presentation": external.MimeTypePresentation,
	"any":          "",
}

// DriveSearchTool implements the 'drive_search' tool.
type DriveSearchTool struct {
	client external.DriveClient
	config *ToolConfig
}

// NewDriveSearchTool creates a new DriveSearchTool instance.
func NewDriveSearchTool(client external.DriveClient, config *ToolConfig) *DriveSearchTool {
	if config == nil {
		config = DefaultToolConfig()
	}
	return &DriveSearchTool{client: client, config: config}
}

// DriveSearchToolDefinition declares drive_search.
func DriveSearchToolDefinition() Definition {
	return Definition{
		Name:        "drive_search",
		Description: "Search the user's Google Drive for files or folders by name. Use kind=folder to locate a folder before copying files into it.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name":      map[string]interface{}{"type": "string", "description": "Text the file name contains."},
				"kind":      map[string]interface{}{"type": "string", "enum": []string{"folder", "document", "spreadsheet", "presentation", "any"}},
				"parent_id": map[string]interface{}{"type": "string", "description": "Only return direct children of this folder."},
				"max_results": map[string]interface{}{
					"type":    "integer",
					"minimum": 1,
					"maximum": 50,
				},
			},
			"required": []string{"name"},
		},
		Reentrant: true,
	}
}

// Execute implements ToolExecutor interface.
// Returns:
//   - {files: [...], result_count: int}
func (t *DriveSearchTool) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	kind := stringArg(inv.Input, "kind")
	if kind == "" {
		kind = "any"
	}

	files, err := t.client.Search(ctx, inv.UserID, external.DriveQuery{
		NameContains: stringArg(inv.Input, "name"),
		MimeType:     driveKinds[kind],
		ParentID:     stringArg(inv.Input, "parent_id"),
		MaxResults:   clampedIntArg(inv.Input, "max_results", t.config.DriveSearchDefaultLimit, t.config.DriveSearchMaxLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("drive search failed: %w", err)
	}

	return Output(map[string]interface{}{
		"files":        files,
		"result_count": len(files),
	}), nil
}

// DriveCopyTool implements the 'drive_copy' tool.
// The copy is proposed; it runs only after the user approves it.
type DriveCopyTool struct {
	client external.DriveClient
	config *ToolConfig
}

// NewDriveCopyTool creates a new DriveCopyTool instance.
func NewDriveCopyTool(client external.DriveClient, config *ToolConfig) *DriveCopyTool {
	if config == nil {
		config = DefaultToolConfig()
	}
	return &DriveCopyTool{client: client, config: config}
}

// DriveCopyToolDefinition declares drive_copy. It is non-reentrant so copies
// proposed in one iteration are recorded in call order.
func DriveCopyToolDefinition() Definition {
	return Definition{
		Name:        "drive_copy",
		Description: "Propose copying a Drive file into a folder. The copy happens only after the user approves it.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_id":    map[string]interface{}{"type": "string", "minLength": 1},
				"folder_id":  map[string]interface{}{"type": "string", "minLength": 1},
				"name":       map[string]interface{}{"type": "string", "description": "Name for the copy. Defaults to the original name."},
				"reasoning":  reasoningProperty,
				"confidence": confidenceProperty,
				"ttl_hours":  ttlProperty,
			},
			"required": []string{"file_id", "folder_id"},
		},
		Mutating:  true,
		Reentrant: false,
	}
}

// Execute implements ToolExecutor interface.
func (t *DriveCopyTool) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	fileID := stringArg(inv.Input, "file_id")
	folderID := stringArg(inv.Input, "folder_id")

	source, err := t.client.GetFile(ctx, inv.UserID, fileID)
	if err != nil {
		return nil, toolError(inv, "FILE_NOT_FOUND", fmt.Sprintf("Could not read Drive file %s: %v", fileID, err))
	}
	folder, err := t.client.GetFile(ctx, inv.UserID, folderID)
	if err != nil {
		return nil, toolError(inv, "FOLDER_NOT_FOUND", fmt.Sprintf("Could not read Drive folder %s: %v", folderID, err))
	}
	if folder.MimeType != external.MimeTypeFolder {
		return nil, toolError(inv, "NOT_A_FOLDER", fmt.Sprintf("%s is not a folder", folder.Name))
	}

	name := stringArg(inv.Input, "name")
	if name == "" {
		name = source.Name
	}

	confidence := confidenceArg(inv.Input)
	if confidence == nil {
		d := t.config.DefaultCopyConfidence
		confidence = &d
	}

	return Propose(&approval.Proposal{
		FileID:      source.ID,
		Title:       fmt.Sprintf("Copy %s to %s", source.Name, folder.Name),
		Description: fmt.Sprintf("Copy Drive file %q into folder %q as %q", source.Name, folder.Name, name),
		ChangeType:  approval.ChangeTypeCopy,
		Reasoning:   stringArg(inv.Input, "reasoning"),
		Confidence:  confidence,
		TTL:         ttlArg(inv.Input),
		Payload: map[string]interface{}{
			"folder_id":   folder.ID,
			"folder_name": folder.Name,
			"name":        name,
		},
	}), nil
}
