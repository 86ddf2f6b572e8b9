package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLite is the default Store, a single-file gorm-managed database.
type SQLite struct {
	db *gorm.DB
}

type userRow struct {
	ID          string `gorm:"primaryKey"`
	Email       string `gorm:"index"`
	Username    string `gorm:"index"`
	Name        string
	Role        string
	Scopes      string
	Identity    string
	LastLoginAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (userRow) TableName() string { return "users" }

// NewSQLite opens (and migrates) the database at dsn.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	if err := db.AutoMigrate(&userRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate users table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*User, error) {
	var row userRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rowToUser(&row)
}

func (s *SQLite) Query(ctx context.Context, filter Filter, limit int) ([]*User, error) {
	q := s.db.WithContext(ctx).Model(&userRow{})
	for field, value := range filter {
		switch field {
		case "email", "username", "name", "role":
			q = q.Where(field+" = ?", value)
		default:
			return nil, fmt.Errorf("unsupported filter field: %s", field)
		}
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []userRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(rows))
	for i := range rows {
		u, err := rowToUser(&rows[i])
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *SQLite) Insert(ctx context.Context, u *User) error {
	row, err := userToRow(u)
	if err != nil {
		return err
	}
	now := time.Now()
	row.CreatedAt = now
	row.UpdatedAt = now
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *SQLite) Update(ctx context.Context, id string, p Partial) error {
	updates, err := partialToColumns(p)
	if err != nil {
		return err
	}
	updates["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func rowToUser(row *userRow) (*User, error) {
	u := &User{
		ID:          row.ID,
		Email:       row.Email,
		Username:    row.Username,
		Name:        row.Name,
		Role:        row.Role,
		LastLoginAt: row.LastLoginAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.Scopes != "" {
		u.Scopes = strings.Split(row.Scopes, " ")
	}
	if row.Identity != "" {
		if err := json.Unmarshal([]byte(row.Identity), &u.Identity); err != nil {
			return nil, fmt.Errorf("corrupt identity metadata for user %s: %w", row.ID, err)
		}
	}
	return u, nil
}

func userToRow(u *User) (*userRow, error) {
	identity, err := json.Marshal(u.Identity)
	if err != nil {
		return nil, err
	}
	return &userRow{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Name:        u.Name,
		Role:        u.Role,
		Scopes:      strings.Join(u.Scopes, " "),
		Identity:    string(identity),
		LastLoginAt: u.LastLoginAt,
	}, nil
}

func partialToColumns(p Partial) (map[string]any, error) {
	updates := make(map[string]any, len(p))
	for field, value := range p {
		switch field {
		case "email", "username", "name", "role":
			updates[field] = value
		case "scopes":
			scopes, ok := value.([]string)
			if !ok {
				return nil, fmt.Errorf("scopes update must be []string")
			}
			updates["scopes"] = strings.Join(scopes, " ")
		case "identity":
			b, err := json.Marshal(value)
			if err != nil {
				return nil, err
			}
			updates["identity"] = string(b)
		case "last_login_at":
			updates["last_login_at"] = value
		default:
			return nil, fmt.Errorf("unsupported update field: %s", field)
		}
	}
	return updates, nil
}
