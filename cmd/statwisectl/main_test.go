package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"p1", "p2"}, splitList(" p1, ,p2,"))
	assert.Empty(t, splitList(""))
}

func TestFindCommand(t *testing.T) {
	for _, name := range []string{"migrate", "seed", "purge", "summary", "backfill-sessions", "session", "status", "help"} {
		cmd := findCommand(name)
		if assert.NotNil(t, cmd, name) {
			assert.Equal(t, name, cmd.Name())
		}
	}
	assert.Nil(t, findCommand("create-admin-user"))
}
