package sqlexec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateDatabaseAndSeed_BuildsExpectedStatementSequence(t *testing.T) {
	stmts := CreateDatabaseAndSeed("demo_ab12cd34")

	assert.Equal(t, []string{
		"CREATE DATABASE `demo_ab12cd34`",
		"USE benchmark",
		"CALL generate_table_data('demo_ab12cd34', 'bench_tbl', 10, 100000, 1000, 1)",
	}, stmts)
}

func TestDropDatabase_UsesIfExists(t *testing.T) {
	stmts := DropDatabase("demo_ab12cd34")
	assert.Equal(t, []string{"DROP DATABASE IF EXISTS `demo_ab12cd34`"}, stmts)
}

func TestProbeDatabase_SwitchesToTheNamedDatabase(t *testing.T) {
	stmts := ProbeDatabase("demo_ab12cd34")
	assert.Equal(t, []string{"USE `demo_ab12cd34`"}, stmts)
}

func TestError_WrapsAndFormatsTheUnderlyingCause(t *testing.T) {
	cause := errors.New("syntax error")
	err := &Error{StatementIndex: 2, Statement: "BAD SQL", Err: cause}

	assert.Equal(t, "sql statement 2 failed: syntax error", err.Error())
	assert.ErrorIs(t, err, cause)
}
