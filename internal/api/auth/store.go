package auth

import (
	"errors"

	"todonest/internal/model"

	"gorm.io/gorm"
)

// dbUserStore 基于 gorm 的 UserStore 实现。
type dbUserStore struct {
	db *gorm.DB
}

// NewStore 创建数据库 UserStore。
func NewStore(db *gorm.DB) UserStore {
	return &dbUserStore{db: db}
}

func (s *dbUserStore) FindByEmail(email string) (*model.User, error) {
	var user model.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *dbUserStore) Create(user *model.User) error {
	return s.db.Create(user).Error
}

func (s *dbUserStore) Save(user *model.User) error {
	return s.db.Save(user).Error
}
