package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blancagut/PaySafer-sub000/internal/destination"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMaxMethods = 10

// MethodStore manages a user's saved payout destinations.
type MethodStore struct {
	repo       MethodRepository
	maxMethods int
	log        *zap.Logger
}

func NewMethodStore(repo MethodRepository, maxMethods int, log *zap.Logger) *MethodStore {
	if maxMethods <= 0 {
		maxMethods = DefaultMaxMethods
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MethodStore{repo: repo, maxMethods: maxMethods, log: log.Named("payout_methods")}
}

func (s *MethodStore) List(ctx context.Context, userID string) ([]PayoutMethod, error) {
	return s.repo.ListMethods(ctx, userID)
}

// Get returns the method only when it belongs to userID.
func (s *MethodStore) Get(ctx context.Context, userID string, id string) (*PayoutMethod, error) {
	m, err := s.repo.GetMethod(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, ErrMethodNotFound
	}
	return m, nil
}

func (s *MethodStore) Add(ctx context.Context, userID string, in MethodInput) (*PayoutMethod, error) {
	details, err := destination.Parse(in.Input)
	if err != nil {
		return nil, err
	}

	label := strings.TrimSpace(in.Label)
	if label == "" {
		label = details.Summary()
	}
	now := time.Now()
	m := &PayoutMethod{
		ID:        uuid.New().String(),
		UserID:    userID,
		Label:     label,
		IsDefault: in.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.setDetails(details)

	if err := s.repo.CreateMethod(ctx, m, s.maxMethods); err != nil {
		if errors.Is(err, ErrMethodLimit) {
			return nil, &destination.ValidationError{
				Message: fmt.Sprintf("you can save at most %d payout methods", s.maxMethods),
			}
		}
		return nil, err
	}

	s.log.Info("payout method added", zap.String("method_id", m.ID), zap.String("user_id", userID), zap.String("type", string(m.Type)))
	return m, nil
}

func (s *MethodStore) Remove(ctx context.Context, userID string, id string) error {
	if err := s.repo.DeleteMethod(ctx, userID, id); err != nil {
		return err
	}
	s.log.Info("payout method removed", zap.String("method_id", id), zap.String("user_id", userID))
	return nil
}

func (s *MethodStore) SetDefault(ctx context.Context, userID string, id string) error {
	return s.repo.SetDefaultMethod(ctx, userID, id)
}
