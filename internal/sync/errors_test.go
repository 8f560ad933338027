package sync

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{"Nil", nil, ""},
		{"Precondition", &PreconditionError{Reason: "missing npx"}, CategoryPrecondition},
		{"Connectivity", &ConnectivityError{Endpoint: "r2", Err: errors.New("refused")}, CategoryConnectivity},
		{"Schema", &SchemaError{Object: "skus", Err: errors.New("missing")}, CategorySchema},
		{"Apply", &ApplyError{File: "dump_schema.sql", ExitCode: 1}, CategoryApply},
		{"Wrapped Apply", fmt.Errorf("run failed: %w", &ApplyError{File: "f", ExitCode: 2}), CategoryApply},
		{"Plain", errors.New("boom"), CategoryInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Categorize(tc.err))
		})
	}
}

func TestApplyErrorMessageCarriesOutput(t *testing.T) {
	err := &ApplyError{
		File:     "dump_skus_1.sql",
		ExitCode: 1,
		Output:   "Error: D1_EXEC failed\n",
	}
	assert.Contains(t, err.Error(), "dump_skus_1.sql")
	assert.Contains(t, err.Error(), "exit code 1")
	assert.Contains(t, err.Error(), "D1_EXEC failed")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("file does not exist")
	err := &PreconditionError{Reason: "store missing", Err: cause}
	assert.ErrorIs(t, err, cause)
}
