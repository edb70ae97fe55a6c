package tools

import (
	"fmt"

	contentRepo "council/internal/domain/repositories/content"
	"council/internal/service/llm/tools/external"
)

// ToolRegistryBuilder provides a fluent API for building tool registries.
// Registration errors are collected and reported by Build.
type ToolRegistryBuilder struct {
	registry *ToolRegistry
	config   *ToolConfig
	errs     []error
}

// NewToolRegistryBuilder creates a new builder with a fresh registry.
func NewToolRegistryBuilder() *ToolRegistryBuilder {
	return &ToolRegistryBuilder{
		registry: NewToolRegistry(),
		config:   DefaultToolConfig(),
	}
}

// WithConfig sets custom tool configuration.
// If not called, defaults will be used. Call it before the With*Tools methods.
func (b *ToolRegistryBuilder) WithConfig(config *ToolConfig) *ToolRegistryBuilder {
	if config != nil {
		b.config = config
	}
	return b
}

// WithContentTools registers file_read and doc_edit against a content store.
func (b *ToolRegistryBuilder) WithContentTools(store contentRepo.ContentStore) *ToolRegistryBuilder {
	if store == nil {
		return b
	}
	b.register(FileReadToolDefinition(), NewFileReadTool(store, b.config))
	b.register(EditToolDefinition(), NewEditTool(store, b.config))
	return b
}

// WithDriveTools registers drive_search and drive_copy.
// Only registers if a client is provided.
func (b *ToolRegistryBuilder) WithDriveTools(client external.DriveClient) *ToolRegistryBuilder {
	if client == nil {
		return b
	}
	b.register(DriveSearchToolDefinition(), NewDriveSearchTool(client, b.config))
	b.register(DriveCopyToolDefinition(), NewDriveCopyTool(client, b.config))
	return b
}

// WithCalendar registers calendar_lookup.
func (b *ToolRegistryBuilder) WithCalendar(client external.CalendarClient) *ToolRegistryBuilder {
	if client == nil {
		return b
	}
	b.register(CalendarToolDefinition(), NewCalendarTool(client, b.config))
	return b
}

// WithTool registers a custom tool.
func (b *ToolRegistryBuilder) WithTool(def Definition, executor ToolExecutor) *ToolRegistryBuilder {
	b.register(def, executor)
	return b
}

func (b *ToolRegistryBuilder) register(def Definition, executor ToolExecutor) {
	if err := b.registry.Register(def, executor); err != nil {
		b.errs = append(b.errs, err)
	}
}

// Build returns the constructed tool registry.
func (b *ToolRegistryBuilder) Build() (*ToolRegistry, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("build tool registry: %w", b.errs[0])
	}
	return b.registry, nil
}
