package models_test

import (
	"encoding/json"
	"pipi/backend/internal/models"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUserBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestUserBeforeCreate_GeneratesUUID(t *testing.T) {
	// Arrange
	user := &models.User{
		Nickname:    "jia",
		Affiliation: models.AffiliationPostech,
		Email:       "jia@example.com",
	}
	assert.Empty(t, user.ID, "User ID should be empty before BeforeCreate")

	// Act
	err := user.BeforeCreate(nil)

	// Assert
	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(user.ID)
	assert.NoError(t, parseErr, "User ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestUserBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestUserBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	user := &models.User{ID: existingID, Nickname: "sy", Email: "sy@example.com"}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, existingID, user.ID, "BeforeCreate should preserve existing ID")
}

// TestUserStructTags verifies that struct tags are correctly defined for GORM and JSON.
func TestUserStructTags(t *testing.T) {
	userType := reflect.TypeOf(models.User{})

	idField, found := userType.FieldByName("ID")
	assert.True(t, found)
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")

	emailField, found := userType.FieldByName("Email")
	assert.True(t, found)
	assert.Contains(t, emailField.Tag.Get("gorm"), "uniqueIndex", "Email must be unique")

	hashField, found := userType.FieldByName("PasswordHash")
	assert.True(t, found)
	assert.Equal(t, "-", hashField.Tag.Get("json"), "Password hash must never be serialized")
}

func TestUserJSON_HidesPasswordHash(t *testing.T) {
	user := models.User{
		ID:           "u1",
		Nickname:     "hy",
		Affiliation:  models.AffiliationAppleDeveloperAcademy,
		Email:        "hy@example.com",
		PasswordHash: "$2a$10$secret",
	}

	data, err := json.Marshal(user)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), `"affiliation":"apple_developer_academy"`)
	assert.NotContains(t, string(data), "telegram_chat_id", "unset chat id is omitted")
}

func TestAffiliationValid(t *testing.T) {
	tests := []struct {
		name  string
		value models.Affiliation
		want  bool
	}{
		{"postech", models.AffiliationPostech, true},
		{"academy", models.AffiliationAppleDeveloperAcademy, true},
		{"empty", "", false},
		{"unknown", "kaist", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.Valid())
		})
	}
}
