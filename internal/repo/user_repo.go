// Package repo — repository functions for the User model.
//
// Users arrive from two directions: a Telegram update (real chat id,
// username, first name) or a webhook (no chat identity yet, only a phone).
// Webhook-created users get a temporary id until the person opens the bot
// and confirms their phone.
package repo

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/changcafe/go-order-bridge/internal/domain"
)

// Temporary ids are handed to users created from webhook payloads before
// they ever open the bot; the row is relinked to the real Telegram id once
// the user confirms their phone.
const (
	tempIDMin int64 = 10_000_000
	tempIDMax int64 = 100_000_000
)

// tempIDFn is a seam so tests can make id generation deterministic.
var tempIDFn = func() int64 {
	return tempIDMin + rand.Int63n(tempIDMax-tempIDMin)
}

// GetOrCreateUser fetches the user with the given Telegram id, creating a
// client row on first contact. Name fields are filled in when the stored
// row has none (a webhook-created row carries only the form name).
func GetOrCreateUser(ctx context.Context, db *gorm.DB, id int64, username, firstName, lastName string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).First(&u, "id = ?", id).Error
	switch {
	case err == nil:
		updates := map[string]any{}
		if username != "" && u.Username == nil {
			updates["username"] = username
		}
		if firstName != "" && u.FirstName == "" {
			updates["first_name"] = firstName
		}
		if lastName != "" && u.LastName == nil {
			updates["last_name"] = lastName
		}
		if len(updates) > 0 {
			if err := db.WithContext(ctx).Model(&u).Updates(updates).Error; err != nil {
				return nil, err
			}
		}
		return &u, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = domain.User{
			ID:        id,
			FirstName: firstName,
			Role:      domain.RoleClient,
			CreatedAt: time.Now().UTC(),
		}
		if username != "" {
			u.Username = &username
		}
		if lastName != "" {
			u.LastName = &lastName
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	default:
		return nil, err
	}
}

// GetUser fetches a user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByPhone fetches a user by canonical phone, or ErrNotFound.
func GetUserByPhone(ctx context.Context, db *gorm.DB, normalized string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "phone = ?", normalized).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ClaimUserPhone stores a confirmed phone on the user row. When a
// webhook-created placeholder row already holds that phone under the unique
// index, the placeholder's orders are repointed to the claiming user and the
// placeholder is removed, all in one transaction. Returns ErrNotFound when
// the claiming user does not exist.
func ClaimUserPhone(ctx context.Context, db *gorm.DB, id int64, normalized string) (*domain.User, error) {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holder domain.User
		err := tx.First(&holder, "phone = ? AND id <> ?", normalized, id).Error
		switch {
		case err == nil:
			if err := tx.Model(&domain.Order{}).
				Where("user_id = ?", holder.ID).
				Update("user_id", id).Error; err != nil {
				return err
			}
			// Carry the form email over before the placeholder goes away.
			if holder.Email != nil {
				if err := tx.Model(&domain.User{}).
					Where("id = ? AND email IS NULL", id).
					Update("email", holder.Email).Error; err != nil {
					return err
				}
			}
			if err := tx.Delete(&domain.User{}, "id = ?", holder.ID).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// No placeholder; a plain phone update.
		default:
			return err
		}

		res := tx.Model(&domain.User{}).Where("id = ?", id).Update("phone", normalized)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetUser(ctx, db, id)
}

// GetOrCreateUserByPhone is the webhook path: look the customer up by
// canonical phone, and when unknown create a client row under a temporary
// id. Two webhooks racing on the same new phone are resolved by the phone
// column's unique index — the loser re-reads and returns the winner's row.
func GetOrCreateUserByPhone(ctx context.Context, db *gorm.DB, normalized, name, email string) (*domain.User, error) {
	if u, err := GetUserByPhone(ctx, db, normalized); err == nil {
		return u, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	u := domain.User{
		ID:        tempIDFn(),
		FirstName: name,
		Phone:     &normalized,
		Role:      domain.RoleClient,
		CreatedAt: time.Now().UTC(),
	}
	if email != "" {
		u.Email = &email
	}
	if err := db.WithContext(ctx).Create(&u).Error; err != nil {
		if IsDuplicateKey(err) {
			return GetUserByPhone(ctx, db, normalized)
		}
		return nil, err
	}
	return &u, nil
}
