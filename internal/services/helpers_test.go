package services_test

import (
	"context"
	"testing"

	"github.com/bk-med/kanban/internal/database"
	"github.com/bk-med/kanban/internal/models"
	"github.com/bk-med/kanban/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPassword = "correct-horse-battery"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string, admin bool) models.User {
	t.Helper()
	hashed, err := services.HashPassword(testPassword, 4)
	require.NoError(t, err)
	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		IsActive: true,
		IsStaff:  admin,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func actorOf(u models.User) models.Actor {
	return models.NewActor(&u)
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

// recordingNotifier keeps every notification it is handed.
type recordingNotifier struct {
	sent []services.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n services.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}
