package computebudget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetComputeUnitLimit(t *testing.T) {
	instruction := SetComputeUnitLimit(250_000)
	assert.EqualValues(t, ProgramKey[:], instruction.Program)

	limit, err := ParseSetComputeUnitLimitIxnData(instruction.Data)
	require.NoError(t, err)
	assert.EqualValues(t, 250_000, limit)

	_, err = ParseSetComputeUnitLimitIxnData(instruction.Data[:4])
	assert.Error(t, err)

	_, err = ParseSetComputeUnitPriceIxnData(instruction.Data)
	assert.Error(t, err)
}

func TestSetComputeUnitPrice(t *testing.T) {
	instruction := SetComputeUnitPrice(10_000)
	assert.EqualValues(t, ProgramKey[:], instruction.Program)

	price, err := ParseSetComputeUnitPriceIxnData(instruction.Data)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000, price)

	_, err = ParseSetComputeUnitPriceIxnData(instruction.Data[:8])
	assert.Error(t, err)

	_, err = ParseSetComputeUnitLimitIxnData(instruction.Data)
	assert.Error(t, err)
}
