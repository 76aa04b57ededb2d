package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID           string     `gorm:"primaryKey;size:36" json:"user_id"`
	Login        string     `gorm:"size:64;not null;uniqueIndex" json:"login"`
	DisplayName  string     `gorm:"size:128" json:"display_name"`
	PasswordHash string     `gorm:"size:128;not null" json:"-"`
	Roles        string     `gorm:"size:255;not null" json:"-"`
	Status       UserStatus `gorm:"type:enum('ACTIVE','DISABLED');not null;default:'ACTIVE'" json:"status"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// RoleList splits the comma-joined roles column, keeping only roles the
// permission map knows about.
func (u *User) RoleList() []string {
	var roles []string
	for _, r := range utils.SplitAndTrim(u.Roles, ",") {
		if rbac.KnownRole(r) {
			roles = append(roles, r)
		}
	}
	return roles
}

func GetUserByLogin(ctx context.Context, login string) (*User, error) {
	var user User
	err := config.GetDB().WithContext(ctx).Where("login = ?", login).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrKindNotFound, "user not found: %s", login)
		}
		return nil, err
	}
	return &user, nil
}

// UserView is the listing shape; it exposes roles but never the hash.
type UserView struct {
	Login       string     `json:"login"`
	DisplayName string     `json:"display_name"`
	Roles       []string   `json:"roles"`
	Status      UserStatus `json:"status"`
}

// ListAssignableUsers returns active users, for the case-assignment picker.
func ListAssignableUsers(ctx context.Context) ([]UserView, error) {
	var users []User
	err := config.GetDB().WithContext(ctx).
		Where("status = ?", UserStatusActive).
		Order("login").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, UserView{
			Login:       u.Login,
			DisplayName: u.DisplayName,
			Roles:       u.RoleList(),
			Status:      u.Status,
		})
	}
	return views, nil
}
