package core

import (
	"context"
	"log"
	"time"

	"github.com/awsl-project/appforge/internal/cooldown"
	"github.com/awsl-project/appforge/internal/repository"
)

// BackgroundTaskDeps 后台任务依赖
type BackgroundTaskDeps struct {
	Generations repository.GenerationRepository
	Attempts    repository.GenerationAttemptRepository
	Cooldowns   *cooldown.Manager

	// 0 表示不清理
	RetentionDays int
}

// StartBackgroundTasks 启动所有后台任务，ctx 结束时退出
func StartBackgroundTasks(ctx context.Context, deps BackgroundTaskDeps) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
		deps.runTasks()

		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deps.runTasks()
			}
		}
	}()

	log.Println("[Task] Background tasks started")
}

// runTasks 执行所有后台任务
func (d *BackgroundTaskDeps) runTasks() {
	log.Println("[Task] Starting background tasks")

	// 清理过期冷却
	if d.Cooldowns != nil {
		d.Cooldowns.CleanupExpired()
	}

	// 清理过期生成记录
	d.cleanupOldGenerations()

	log.Println("[Task] All background tasks completed")
}

// cleanupOldGenerations 清理过期的生成记录及其尝试记录
func (d *BackgroundTaskDeps) cleanupOldGenerations() {
	if d.RetentionDays <= 0 {
		return
	}

	before := time.Now().AddDate(0, 0, -d.RetentionDays)
	if d.Attempts != nil {
		if deleted, err := d.Attempts.DeleteOlderThan(before); err != nil {
			log.Printf("[Task] Failed to delete old attempts: %v", err)
		} else if deleted > 0 {
			log.Printf("[Task] Deleted %d attempts older than %d days", deleted, d.RetentionDays)
		}
	}
	if d.Generations != nil {
		if deleted, err := d.Generations.DeleteOlderThan(before); err != nil {
			log.Printf("[Task] Failed to delete old generations: %v", err)
		} else if deleted > 0 {
			log.Printf("[Task] Deleted %d generations older than %d days", deleted, d.RetentionDays)
		}
	}
}
