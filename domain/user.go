// Package domain contains core concepts of the chat client.
// This file defines the User profile stored under user:<name>.
package domain

import (
	"chat-pubsub/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const userKeyPrefix = "user:"

// Stored field names of a user profile.
const (
	FieldName     = "name"
	FieldAge      = "age"
	FieldGender   = "gender"
	FieldLocation = "location"
)

type User struct {
	Name     string `validate:"required"`
	Age      string
	Gender   string
	Location string
}

func (u User) Validate() error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidUser, err)
	}
	return nil
}

func (u User) Key() string {
	return UserKey(u.Name)
}

func (u User) Fields() map[string]string {
	return map[string]string{
		FieldName:     u.Name,
		FieldAge:      u.Age,
		FieldGender:   u.Gender,
		FieldLocation: u.Location,
	}
}

func UserKey(name string) string {
	return userKeyPrefix + name
}

// UserFromFields rebuilds a profile from a stored hash. The key name wins
// over a missing name field.
func UserFromFields(name string, fields map[string]string) User {
	u := User{
		Name:     fields[FieldName],
		Age:      fields[FieldAge],
		Gender:   fields[FieldGender],
		Location: fields[FieldLocation],
	}
	if u.Name == "" {
		u.Name = name
	}
	return u
}
