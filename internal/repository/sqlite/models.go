package sqlite

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ==================== GORM Models ====================
// These models map directly to the database schema.
// Domain models are converted to/from these in repository methods.

// LongText is a string type that maps to LONGTEXT in MySQL and TEXT in SQLite/PostgreSQL
type LongText string

// GormDBDataType returns the database-specific data type
func (LongText) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "longtext"
	default:
		return "text"
	}
}

// BaseModel contains common fields for all entities
type BaseModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	CreatedAt int64  `gorm:"autoCreateTime:milli"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli"`
}

// BeforeCreate sets timestamps before creating
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = now
	}
	return nil
}

// BeforeUpdate sets updated_at before updating
func (m *BaseModel) BeforeUpdate(tx *gorm.DB) error {
	m.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// Generation model
type Generation struct {
	BaseModel
	InstanceID     string `gorm:"size:64"`
	RequestID      string `gorm:"size:64"`
	ConversationID string `gorm:"size:255;index"`
	RequestModel   string `gorm:"size:128"`
	UsedModel      string `gorm:"size:128"`
	Status         string `gorm:"size:64"`
	StartTime      int64
	EndTime        int64
	DurationMs     int64
	AttemptCount   uint64
	RecoveredFiles LongText
	FileCount      int
	ChangedFiles   int
	PromptTokens   uint64
	OutputTokens   uint64
	Cost           uint64
	PreviewURL     string `gorm:"size:512"`
	Error          LongText
}

func (Generation) TableName() string { return "generations" }

// GenerationAttempt model
type GenerationAttempt struct {
	BaseModel
	GenerationID uint64 `gorm:"index"`
	ModelID      string `gorm:"size:128"`
	Provider     string `gorm:"size:64"`
	Status       string `gorm:"size:64"`
	StartTime    int64
	EndTime      int64
	DurationMs   int64
	OutputChars  int
	ParseStatus  string `gorm:"size:32"`
	ErrorKind    string `gorm:"size:32"`
	Error        LongText
}

func (GenerationAttempt) TableName() string { return "generation_attempts" }

// Project model, one row per conversation
type Project struct {
	BaseModel
	ConversationID   string `gorm:"size:255;uniqueIndex"`
	Files            LongText
	LastGenerationID uint64
	PreviewURL       string `gorm:"size:512"`
	SandboxID        string `gorm:"size:128"`
}

func (Project) TableName() string { return "projects" }

// Snapshot model
type Snapshot struct {
	SnapshotID     string `gorm:"column:snapshot_id;size:64;primaryKey"`
	ConversationID string `gorm:"size:255;index"`
	GenerationID   uint64
	FileCount      int
	CreatedAt      int64
}

func (Snapshot) TableName() string { return "snapshots" }

// Cooldown model
type Cooldown struct {
	BaseModel
	Provider     string `gorm:"size:64;uniqueIndex"`
	UntilTime    int64  `gorm:"index"`
	Reason       string `gorm:"size:64;default:'unknown'"`
	FailureCount int
}

func (Cooldown) TableName() string { return "cooldowns" }

// SchemaMigration tracks applied migrations
type SchemaMigration struct {
	Version     int    `gorm:"primaryKey"`
	Description string `gorm:"size:255"`
	AppliedAt   int64
}

func (SchemaMigration) TableName() string { return "schema_migrations" }

// AllModels returns all GORM models for auto-migration
func AllModels() []any {
	return []any{
		&Generation{},
		&GenerationAttempt{},
		&Project{},
		&Snapshot{},
		&Cooldown{},
		&SchemaMigration{},
	}
}
