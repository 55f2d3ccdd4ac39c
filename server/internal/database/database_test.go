package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomhv/usagegraph/internal/model"
	"github.com/tomhv/usagegraph/internal/pricing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func testUser(t *testing.T, db *DB) *User {
	t.Helper()
	user := &User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: "hash",
		APIKey:       "ug_test",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, db.CreateUser(user))
	return user
}

func TestUserLookup(t *testing.T) {
	db := openTestDB(t)
	user := testUser(t, db)

	byName, err := db.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, user.ID, byName.ID)

	byKey, err := db.GetUserByAPIKey("ug_test")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, user.ID, byKey.ID)

	missing, err := db.GetUserByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertMessagesDeduplicates(t *testing.T) {
	db := openTestDB(t)
	user := testUser(t, db)
	catalog := pricing.EmbeddedCatalog()

	msg := model.UnifiedMessage{
		Source:    "claude-code",
		ModelID:   "claude-sonnet-4-20250514",
		SessionID: "s1",
		Timestamp: 1717245000000,
		Date:      "2024-06-01",
		Tokens:    model.TokenBreakdown{Input: 1000, Output: 500},
	}

	inserted, err := db.InsertMessages(user.ID, "c1", []model.UnifiedMessage{msg}, catalog)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	// Same message again is ignored
	inserted, err = db.InsertMessages(user.ID, "c1", []model.UnifiedMessage{msg}, catalog)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)

	count, err := db.CountMessages(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestInsertMessagesRecomputesCost(t *testing.T) {
	db := openTestDB(t)
	user := testUser(t, db)

	msg := model.UnifiedMessage{
		Source:    "claude-code",
		ModelID:   "claude-sonnet-4-20250514",
		SessionID: "s1",
		Timestamp: 1717245000000,
		Date:      "2024-06-01",
		Tokens:    model.TokenBreakdown{Input: 1000, Output: 500},
		Cost:      999.0, // client-reported value must be ignored
	}

	_, err := db.InsertMessages(user.ID, "c1", []model.UnifiedMessage{msg}, pricing.EmbeddedCatalog())
	require.NoError(t, err)

	loaded, err := db.LoadMessages(user.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.InDelta(t, 0.0105, loaded[0].Cost, 1e-9)
}

func TestLoadMessagesOrdering(t *testing.T) {
	db := openTestDB(t)
	user := testUser(t, db)
	catalog := pricing.EmbeddedCatalog()

	msgs := []model.UnifiedMessage{
		{Source: "claude-code", ModelID: "m", SessionID: "s1", Timestamp: 3000, Date: "2024-06-01", Tokens: model.TokenBreakdown{Input: 3}},
		{Source: "claude-code", ModelID: "m", SessionID: "s1", Timestamp: 1000, Date: "2024-06-01", Tokens: model.TokenBreakdown{Input: 1}},
		{Source: "claude-code", ModelID: "m", SessionID: "s1", Timestamp: 2000, Date: "2024-06-01", Tokens: model.TokenBreakdown{Input: 2}},
	}
	_, err := db.InsertMessages(user.ID, "c1", msgs, catalog)
	require.NoError(t, err)

	loaded, err := db.LoadMessages(user.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, int64(1000), loaded[0].Timestamp)
	assert.Equal(t, int64(2000), loaded[1].Timestamp)
	assert.Equal(t, int64(3000), loaded[2].Timestamp)
}

func TestClientSyncStatus(t *testing.T) {
	db := openTestDB(t)
	user := testUser(t, db)

	// Unknown client has no status
	status, err := db.GetClientSyncStatus(user.ID, "c1")
	require.NoError(t, err)
	assert.Nil(t, status)

	_, err = db.GetOrCreateClient(user.ID, "c1", "laptop")
	require.NoError(t, err)

	// Created but never synced
	status, err = db.GetClientSyncStatus(user.ID, "c1")
	require.NoError(t, err)
	assert.Nil(t, status)

	syncTime := time.Now().Truncate(time.Second)
	require.NoError(t, db.UpdateClientLastSync("c1", syncTime))

	status, err = db.GetClientSyncStatus(user.ID, "c1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.WithinDuration(t, syncTime, *status, time.Second)
}
