package cliutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIDList(t *testing.T) {
	assert := assert.New(t)

	ids, err := ParseIDList("")
	assert.NoError(err)
	assert.Empty(ids)

	ids, err = ParseIDList(" 111, 222 ,,333,111")
	assert.NoError(err)
	assert.Equal([]int64{111, 222, 333}, ids)

	_, err = ParseIDList("111,abc")
	assert.Error(err)
}

func TestSetupDatabaseSqlite(t *testing.T) {
	assert := assert.New(t)

	p := filepath.Join(t.TempDir(), "nested", "replyer.db")
	db, err := SetupDatabase("sqlite://"+p, 4)
	assert.NoError(err)
	assert.NoError(db.Exec("SELECT 1").Error)

	_, err = SetupDatabase("mysql://localhost/replyer", 4)
	assert.Error(err)
}
