package auth

import (
	"fmt"
	"strings"

	"keyadmin/entity"
)

type Database interface {
	GetUser(token string) (*entity.User, error)
}

type Auth struct {
	db Database
}

func New(db Database) *Auth {
	return &Auth{db: db}
}

// UserByToken resolves an API user. Unknown tokens are an error.
func (a *Auth) UserByToken(token string) (*entity.User, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database not connected")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", entity.ErrInvalidInput)
	}
	user, err := a.db.GetUser(token)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Username == "" {
		return nil, fmt.Errorf("user not found")
	}
	return user, nil
}
