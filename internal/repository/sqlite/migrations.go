package sqlite

import (
	"log"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Migration 表示一个数据库迁移
type Migration struct {
	Version     int
	Description string
	Up          func(db *gorm.DB) error
	Down        func(db *gorm.DB) error
}

// AutoMigrate 只负责新增列，索引调整和数据修复放在这里
var migrations = []Migration{
	{
		Version:     1,
		Description: "index generations by end_time for retention cleanup",
		Up: func(db *gorm.DB) error {
			return db.Exec(`CREATE INDEX IF NOT EXISTS idx_generations_end_time ON generations (end_time)`).Error
		},
		Down: func(db *gorm.DB) error {
			return db.Exec(`DROP INDEX IF EXISTS idx_generations_end_time`).Error
		},
	},
}

// RunMigrations applies every migration newer than the recorded version
func (d *DB) RunMigrations() error {
	if err := d.gorm.AutoMigrate(&SchemaMigration{}); err != nil {
		return err
	}
	if d.dialect == DialectMySQL {
		// MySQL 不支持 CREATE INDEX IF NOT EXISTS，只记录版本
		return d.recordAll()
	}

	current := d.CurrentVersion()
	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}
		log.Printf("[Migration] Running migration v%d: %s", m.Version, m.Description)
		err := d.gorm.Transaction(func(tx *gorm.DB) error {
			if m.Up != nil {
				if err := m.Up(tx); err != nil {
					return err
				}
			}
			return tx.Create(&SchemaMigration{
				Version:     m.Version,
				Description: m.Description,
				AppliedAt:   time.Now().UnixMilli(),
			}).Error
		})
		if err != nil {
			log.Printf("[Migration] Failed migration v%d: %v", m.Version, err)
			return err
		}
	}
	return nil
}

func (d *DB) recordAll() error {
	current := d.CurrentVersion()
	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}
		if err := d.gorm.Create(&SchemaMigration{
			Version:     m.Version,
			Description: m.Description,
			AppliedAt:   time.Now().UnixMilli(),
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// CurrentVersion 获取当前数据库版本
func (d *DB) CurrentVersion() int {
	var maxVersion int
	d.gorm.Model(&SchemaMigration{}).Select("COALESCE(MAX(version), 0)").Scan(&maxVersion)
	return maxVersion
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	return sorted
}
