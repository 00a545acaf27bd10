package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecute(t *testing.T) {
	args := os.Args
	t.Cleanup(func() { os.Args = args })

	os.Args = []string{"squall", "version"}
	assert.NoError(t, Execute())

	os.Args = []string{"squall", "no-such-command"}
	assert.Error(t, Execute())
}
