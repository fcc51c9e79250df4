package tenancy

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type row struct {
	ID         int64 `gorm:"primaryKey"`
	IsDeleted  bool
	IsDisabled bool
}

func TestActiveOrganizationsFilters(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))
	require.NoError(t, db.Create([]row{
		{ID: 1},
		{ID: 2, IsDeleted: true},
		{ID: 3, IsDisabled: true},
	}).Error)

	var filtered []row
	require.NoError(t, db.Scopes(ActiveOrganizations(Scope{})).Order("id").Find(&filtered).Error)
	assert.Len(t, filtered, 1)

	var all []row
	require.NoError(t, db.Scopes(ActiveOrganizations(Scope{BypassFilters: true})).Find(&all).Error)
	assert.Len(t, all, 3)

	var notDeleted []row
	require.NoError(t, db.Scopes(NotDeleted(Scope{})).Find(&notDeleted).Error)
	assert.Len(t, notDeleted, 2)
}

func TestFromContextDefaultsToFiltered(t *testing.T) {
	assert.False(t, FromContext(context.Background()).BypassFilters)

	ctx := WithScope(context.Background(), Scope{BypassFilters: true})
	assert.True(t, FromContext(ctx).BypassFilters)
}
