package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm/schema"
)

func TestIntegerColumnsMigrateAsInt(t *testing.T) {
	pg := postgres.Dialector{Config: &postgres.Config{}}
	cache := &sync.Map{}

	for _, model := range All() {
		s, err := schema.Parse(model, cache, schema.NamingStrategy{})
		require.NoError(t, err)

		for _, f := range s.Fields {
			if f.DBName == "" || f.DataType != schema.Int {
				continue
			}
			want := "integer"
			if f.AutoIncrement {
				want = "serial"
			}
			assert.Equal(t, want, pg.DataTypeOf(f), "%s.%s", s.Table, f.DBName)
		}
	}
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("ada@example.com"))
	assert.False(t, ValidEmail("not-an-email"))
	assert.False(t, ValidEmail("a@-bad.com"))
}
