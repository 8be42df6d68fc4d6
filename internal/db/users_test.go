package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"consultacnpj/internal/models"
)

func TestUpsertUser_Create(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := &models.User{
		Sub:   "test-sub-123",
		Email: "test@example.com",
		Name:  "Test User",
	}

	if err := db.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}

	if user.ID == uuid.Nil {
		t.Error("UpsertUser() did not set ID")
	}
}

func TestUpsertUser_Update(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := &models.User{
		Sub:   "update-sub-123",
		Email: "original@example.com",
		Name:  "Original Name",
	}
	if err := db.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser() create error = %v", err)
	}
	originalID := user.ID

	user.Email = "updated@example.com"
	user.Name = "Updated Name"
	if err := db.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser() update error = %v", err)
	}

	if user.ID != originalID {
		t.Errorf("UpsertUser() changed ID from %v to %v", originalID, user.ID)
	}

	fetched, err := db.GetUserBySub(ctx, "update-sub-123")
	if err != nil {
		t.Fatalf("GetUserBySub() error = %v", err)
	}
	if fetched.Email != "updated@example.com" {
		t.Errorf("UpsertUser() email = %q, want %q", fetched.Email, "updated@example.com")
	}

	byID, err := db.GetUserByID(ctx, originalID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if byID.Name != "Updated Name" {
		t.Errorf("GetUserByID() name = %q, want %q", byID.Name, "Updated Name")
	}
}

func TestGetUserBySub_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.GetUserBySub(context.Background(), "missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUserBySub() error = %v, want ErrUserNotFound", err)
	}
}
