package bolt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/caic-labs/caic/internal/core/port"
	bbolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"
)

// accountRecord is the stored form of an account; the hash never leaves
// this package.
type accountRecord struct {
	Account      domain.Account
	PasswordHash []byte
}

// Directory implements port.AccountDirectory on bbolt with secondary
// indexes for email, username and chat identifier.
type Directory struct {
	db  *DB
	now func() time.Time
}

func NewDirectory(db *DB) *Directory {
	return &Directory{db: db, now: time.Now}
}

func (d *Directory) Create(ctx context.Context, req domain.NewAccountRequest) (domain.Account, error) {
	if err := req.Validate(); err != nil {
		return domain.Account{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := d.now()
	account := domain.Account{
		ID:        domain.NewAccountID(),
		Username:  req.Username,
		Email:     req.Email,
		ChatID:    domain.NewChatID(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = d.db.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket([]byte(bucketEmailIndex))
		if emails.Get([]byte(account.Email)) != nil {
			return port.ErrEmailTaken
		}
		names := tx.Bucket([]byte(bucketNameIndex))
		if names.Get([]byte(account.Username)) != nil {
			return port.ErrUsernameTaken
		}

		raw, err := encode(accountRecord{Account: account, PasswordHash: hash})
		if err != nil {
			return err
		}
		id := []byte(account.ID.String())
		if err := tx.Bucket([]byte(bucketAccounts)).Put(id, raw); err != nil {
			return err
		}
		if err := emails.Put([]byte(account.Email), id); err != nil {
			return err
		}
		if err := names.Put([]byte(account.Username), id); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketChatIndex)).Put([]byte(account.ChatID.String()), id)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func (d *Directory) Authenticate(ctx context.Context, email, password string) (domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var rec accountRecord
	err := d.db.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(bucketEmailIndex)).Get([]byte(email))
		if id == nil {
			return port.ErrBadCredentials
		}
		raw := tx.Bucket([]byte(bucketAccounts)).Get(id)
		if raw == nil {
			return port.ErrBadCredentials
		}
		return decode(raw, &rec)
	})
	if err != nil {
		return domain.Account{}, err
	}
	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)) != nil {
		return domain.Account{}, port.ErrBadCredentials
	}
	return rec.Account, nil
}

func (d *Directory) ResolveChatID(ctx context.Context, id domain.ChatID) (domain.Account, error) {
	return d.resolveIndexed(bucketChatIndex, id.String())
}

func (d *Directory) ResolveAccount(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	var rec accountRecord
	err := d.db.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketAccounts)).Get([]byte(id.String()))
		if raw == nil {
			return port.ErrAccountNotFound
		}
		return decode(raw, &rec)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return rec.Account, nil
}

func (d *Directory) UpdateProfile(ctx context.Context, id domain.AccountID, username, email string) (domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var updated domain.Account
	err := d.db.db.Update(func(tx *bbolt.Tx) error {
		accounts := tx.Bucket([]byte(bucketAccounts))
		raw := accounts.Get([]byte(id.String()))
		if raw == nil {
			return port.ErrAccountNotFound
		}
		var rec accountRecord
		if err := decode(raw, &rec); err != nil {
			return err
		}

		emails := tx.Bucket([]byte(bucketEmailIndex))
		names := tx.Bucket([]byte(bucketNameIndex))
		key := []byte(id.String())

		if email != "" && email != rec.Account.Email {
			if emails.Get([]byte(email)) != nil {
				return port.ErrEmailTaken
			}
			if err := emails.Delete([]byte(rec.Account.Email)); err != nil {
				return err
			}
			if err := emails.Put([]byte(email), key); err != nil {
				return err
			}
			rec.Account.Email = email
		}
		if username != "" && username != rec.Account.Username {
			if names.Get([]byte(username)) != nil {
				return port.ErrUsernameTaken
			}
			if err := names.Delete([]byte(rec.Account.Username)); err != nil {
				return err
			}
			if err := names.Put([]byte(username), key); err != nil {
				return err
			}
			rec.Account.Username = username
		}

		rec.Account.UpdatedAt = d.now()
		out, err := encode(rec)
		if err != nil {
			return err
		}
		if err := accounts.Put(key, out); err != nil {
			return err
		}
		updated = rec.Account
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return updated, nil
}

func (d *Directory) resolveIndexed(bucket, key string) (domain.Account, error) {
	var rec accountRecord
	err := d.db.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if id == nil {
			return port.ErrAccountNotFound
		}
		raw := tx.Bucket([]byte(bucketAccounts)).Get(id)
		if raw == nil {
			return port.ErrAccountNotFound
		}
		return decode(raw, &rec)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return rec.Account, nil
}
