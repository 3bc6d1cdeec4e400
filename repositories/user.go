package repositories

import (
	"chat-pubsub/contract"
	"chat-pubsub/domain"
	"context"
	"fmt"
)

type IUserRepository interface {
	Save(ctx context.Context, user domain.User) error
	Get(ctx context.Context, name string) (domain.User, error)
}

type UserRepository struct {
	store contract.KeyValueStore
}

func NewUserRepository(store contract.KeyValueStore) *UserRepository {
	return &UserRepository{store: store}
}

// Save overwrites any profile stored under the same name.
func (r *UserRepository) Save(ctx context.Context, user domain.User) error {
	if err := r.store.SetFields(ctx, user.Key(), user.Fields()); err != nil {
		return fmt.Errorf("save user %s: %w", user.Name, err)
	}
	return nil
}

// Get returns errors.ErrNotFound when no profile exists.
func (r *UserRepository) Get(ctx context.Context, name string) (domain.User, error) {
	fields, err := r.store.GetFields(ctx, domain.UserKey(name))
	if err != nil {
		return domain.User{}, err
	}
	return domain.UserFromFields(name, fields), nil
}
