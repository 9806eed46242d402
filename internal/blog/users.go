package blog

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

func (s *Service) Register(ctx context.Context, in forms.CredentialsInput) (*models.User, error) {
	res := forms.ValidateCredentials(in)
	if !res.Valid() {
		return nil, invalid(res.Errors)
	}
	hash, err := auth.HashPassword(res.Value.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           newID(),
		Username:     res.Value.Username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			errs := forms.Errors{}
			errs.Add("username", "Пользователь с таким именем уже существует.")
			return nil, invalid(errs)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("user registered")
	return user, nil
}

// Authenticate не различает неизвестного пользователя и неверный пароль.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) User(ctx context.Context, id string) (*models.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *Service) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.store.GetUserByUsername(ctx, username)
}

func (s *Service) UsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	return s.store.GetUsersByIDs(ctx, ids)
}

func (s *Service) GroupsByIDs(ctx context.Context, ids []string) ([]*models.Group, error) {
	return s.store.GetGroupsByIDs(ctx, ids)
}

// DeleteUser удаляет пользователя вместе с его постами, комментариями и подписками.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.log.WithField("user_id", id).Info("user deleted")
	return nil
}
