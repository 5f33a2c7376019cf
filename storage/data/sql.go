// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/serpmillers/m4c/base/json"
	"github.com/serpmillers/m4c/storage"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

type SQLUser struct {
	UserId       int64     `gorm:"column:user_id;primaryKey;autoIncrement"`
	Username     string    `gorm:"column:username;type:varchar(256);not null;uniqueIndex"`
	Email        string    `gorm:"column:email;type:varchar(256);not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(256);not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (u SQLUser) toUser() User {
	return User{
		UserId:       u.UserId,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

type SQLProfile struct {
	UserId    int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Genres    string    `gorm:"column:genres;type:text;not null"`
	Favorites string    `gorm:"column:favorites;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

type SQLWatchlist struct {
	UserId    int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	MovieId   int64     `gorm:"column:movie_id;primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// SQLDatabase stores accounts in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init creates tables.
func (d *SQLDatabase) Init() error {
	db := d.gormDB
	if d.driver == MySQL {
		db = db.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	return errors.Trace(db.AutoMigrate(SQLUser{}, SQLProfile{}, SQLWatchlist{}))
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge deletes all rows.
func (d *SQLDatabase) Purge() error {
	for _, table := range []string{d.UsersTable(), d.ProfilesTable(), d.WatchlistTable()} {
		if err := d.gormDB.Exec("DELETE FROM " + table).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) CreateUser(ctx context.Context, username, email, password string) (User, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return User{}, errors.NotValidf("empty username, email or password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, errors.Trace(err)
	}
	user := SQLUser{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	err = d.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&SQLUser{}).Where("username = ? OR email = ?", username, email).Count(&count).Error; err != nil {
			return errors.Trace(err)
		}
		if count > 0 {
			return errors.Annotatef(ErrUserExists, "username %s or email %s", username, email)
		}
		return errors.Trace(tx.Create(&user).Error)
	})
	if err != nil {
		return User{}, err
	}
	return user.toUser(), nil
}

func (d *SQLDatabase) Authenticate(ctx context.Context, usernameOrEmail, password string) (User, error) {
	var users []SQLUser
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	if err := d.gormDB.WithContext(ctx).
		Where("username = ? OR email = ?", usernameOrEmail, usernameOrEmail).
		Order("user_id").Limit(1).Find(&users).Error; err != nil {
		return User{}, errors.Trace(err)
	}
	if len(users) == 0 {
		return User{}, errors.Annotate(ErrUserNotExist, usernameOrEmail)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(users[0].PasswordHash), []byte(password)); err != nil {
		return User{}, errors.Annotate(ErrWrongPassword, usernameOrEmail)
	}
	return users[0].toUser(), nil
}

func (d *SQLDatabase) GetUser(ctx context.Context, userId int64) (User, error) {
	var users []SQLUser
	if err := d.gormDB.WithContext(ctx).Where("user_id = ?", userId).Limit(1).Find(&users).Error; err != nil {
		return User{}, errors.Trace(err)
	}
	if len(users) == 0 {
		return User{}, errors.Annotatef(ErrUserNotExist, "user %d", userId)
	}
	return users[0].toUser(), nil
}

func (d *SQLDatabase) GetProfile(ctx context.Context, userId int64) (Profile, error) {
	var profiles []SQLProfile
	if err := d.gormDB.WithContext(ctx).Where("user_id = ?", userId).Limit(1).Find(&profiles).Error; err != nil {
		return Profile{}, errors.Trace(err)
	}
	if len(profiles) == 0 {
		return Profile{}, errors.Annotatef(ErrUserNotExist, "profile of user %d", userId)
	}
	profile := Profile{
		UserId:    profiles[0].UserId,
		Genres:    []string{},
		Favorites: []int64{},
		UpdatedAt: profiles[0].UpdatedAt,
	}
	if err := json.Unmarshal([]byte(profiles[0].Genres), &profile.Genres); err != nil {
		return Profile{}, errors.Trace(err)
	}
	if err := json.Unmarshal([]byte(profiles[0].Favorites), &profile.Favorites); err != nil {
		return Profile{}, errors.Trace(err)
	}
	return profile, nil
}

func (d *SQLDatabase) UpsertProfile(ctx context.Context, profile Profile) error {
	if profile.Genres == nil {
		profile.Genres = []string{}
	}
	if profile.Favorites == nil {
		profile.Favorites = []int64{}
	}
	genres, err := json.Marshal(profile.Genres)
	if err != nil {
		return errors.Trace(err)
	}
	favorites, err := json.Marshal(profile.Favorites)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"genres", "favorites", "updated_at"}),
	}).Create(&SQLProfile{
		UserId:    profile.UserId,
		Genres:    string(genres),
		Favorites: string(favorites),
		UpdatedAt: time.Now().UTC(),
	}).Error)
}

func (d *SQLDatabase) GetWatchlist(ctx context.Context, userId int64) ([]int64, error) {
	movieIds := make([]int64, 0)
	if err := d.gormDB.WithContext(ctx).Model(&SQLWatchlist{}).
		Where("user_id = ?", userId).
		Order("movie_id").
		Pluck("movie_id", &movieIds).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return movieIds, nil
}

func (d *SQLDatabase) AddToWatchlist(ctx context.Context, userId, movieId int64) error {
	return errors.Trace(d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&SQLWatchlist{
		UserId:    userId,
		MovieId:   movieId,
		CreatedAt: time.Now().UTC(),
	}).Error)
}

func (d *SQLDatabase) RemoveFromWatchlist(ctx context.Context, userId, movieId int64) error {
	return errors.Trace(d.gormDB.WithContext(ctx).
		Where("user_id = ? AND movie_id = ?", userId, movieId).
		Delete(&SQLWatchlist{}).Error)
}
