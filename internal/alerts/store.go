package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNoEmail = errors.New("no email on file")

type NotificationRecord struct {
	ID            string     `gorm:"column:id;primaryKey;type:uuid"`
	UserID        string     `gorm:"column:user_id;type:uuid;not null;index"`
	Type          string     `gorm:"column:type;type:varchar(40);not null"`
	Title         string     `gorm:"column:title;type:varchar(200);not null"`
	Body          string     `gorm:"column:body;type:text"`
	ReferenceType string     `gorm:"column:reference_type;type:varchar(32)"`
	ReferenceID   string     `gorm:"column:reference_id;type:varchar(64)"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null;default:now()"`
	ReadAt        *time.Time `gorm:"column:read_at"`
}

func (NotificationRecord) TableName() string { return "notifications" }

// Store writes in-app notifications to the notifications table.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&NotificationRecord{})
}

func (s *Store) Notify(ctx context.Context, n Notification) error {
	rec := NotificationRecord{
		ID:            uuid.New().String(),
		UserID:        n.UserID,
		Type:          n.Type,
		Title:         n.Title,
		Body:          n.Message,
		ReferenceType: n.ReferenceType,
		ReferenceID:   n.ReferenceID,
		CreatedAt:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ProfileDirectory reads emails from the profiles table owned by the auth
// service.
type ProfileDirectory struct {
	db *gorm.DB
}

func NewProfileDirectory(db *gorm.DB) *ProfileDirectory {
	return &ProfileDirectory{db: db}
}

func (d *ProfileDirectory) EmailFor(ctx context.Context, userID string) (string, error) {
	var email string
	err := d.db.WithContext(ctx).
		Table("profiles").
		Select("email").
		Where("id = ?", userID).
		Limit(1).
		Scan(&email).Error
	if err != nil {
		return "", fmt.Errorf("failed to look up email: %w", err)
	}
	if email == "" {
		return "", ErrNoEmail
	}
	return email, nil
}
