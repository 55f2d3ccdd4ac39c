package handlers

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomhv/usagegraph/internal/model"
	"github.com/tomhv/usagegraph/server/internal/database"
	"github.com/tomhv/usagegraph/server/internal/templates"
)

func testHandler(t *testing.T) (*Handler, *database.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	tmpl, err := templates.Parse()
	require.NoError(t, err)

	return New(db, scs.New(), tmpl), db
}

func TestRenderDashboardDatabaseError(t *testing.T) {
	h, db := testHandler(t)
	db.Close() // force the message load to fail

	rec := httptest.NewRecorder()
	h.renderDashboard(rec, &database.User{ID: "u1", Username: "alice"})

	assert.Contains(t, rec.Body.String(), "Failed to load usage data")
	assert.NotContains(t, rec.Body.String(), "Signed in as")
}

func TestHasNegativeTokens(t *testing.T) {
	assert.False(t, hasNegativeTokens(model.TokenBreakdown{Input: 1, Output: 2}))
	assert.False(t, hasNegativeTokens(model.TokenBreakdown{}))
	assert.True(t, hasNegativeTokens(model.TokenBreakdown{Input: -1}))
	assert.True(t, hasNegativeTokens(model.TokenBreakdown{Reasoning: -5}))
}
