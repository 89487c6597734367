// Package history keeps a local record of finished transfers in SQLite.
package history

import (
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Record is one file that took part in a transfer.
type Record struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`
	Direction string    `gorm:"size:16;not null"`
	RoomCode  string    `gorm:"size:16;index"`
	PeerType  string    `gorm:"size:16"`
	FileName  string    `gorm:"not null"`
	Size      int64
	MimeType  string
	Status    string `gorm:"size:16;not null"`
	SavedAs   string
	Error     string
}

type Store struct {
	db *gorm.DB
}

// Open opens the database at path, creating it and its directory if
// needed. ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Add stores records in one transaction.
func (s *Store) Add(records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Create(&records).Error
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]Record, error) {
	var records []Record
	q := s.db.Order("created_at desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Prune deletes records older than cutoff and reports how many went.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", cutoff).Delete(&Record{})
	return res.RowsAffected, res.Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
