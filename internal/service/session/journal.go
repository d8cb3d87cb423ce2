package session

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"wallet-pipeline/internal/model"
)

// Journal records session transitions. Entries are appended, never rewritten.
type Journal interface {
	Append(ctx context.Context, ev *model.SessionEvent) error
	List(ctx context.Context, sessionID string) ([]model.SessionEvent, error)
}

type GormJournal struct {
	db *gorm.DB
}

func NewGormJournal(db *gorm.DB) *GormJournal {
	return &GormJournal{db: db}
}

func (j *GormJournal) Append(ctx context.Context, ev *model.SessionEvent) error {
	return j.db.WithContext(ctx).Create(ev).Error
}

func (j *GormJournal) List(ctx context.Context, sessionID string) ([]model.SessionEvent, error) {
	var events []model.SessionEvent
	err := j.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

// MemoryJournal CLI 与测试使用
type MemoryJournal struct {
	mu     sync.Mutex
	nextID uint64
	events []model.SessionEvent
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Append(_ context.Context, ev *model.SessionEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.nextID++
	ev.ID = j.nextID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	j.events = append(j.events, *ev)
	return nil
}

func (j *MemoryJournal) List(_ context.Context, sessionID string) ([]model.SessionEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []model.SessionEvent
	for _, ev := range j.events {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}
