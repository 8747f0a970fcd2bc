package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, "CARRIER", normalizeRole("carrier"))
	assert.Equal(t, "CARRIER", normalizeRole(" Carrier "))
	assert.Equal(t, "SHIPPER", normalizeRole("SHIPPER"))
	assert.Equal(t, "SHIPPER", normalizeRole(""))
	// ADMIN cannot be self-assigned at registration.
	assert.Equal(t, "SHIPPER", normalizeRole("ADMIN"))
	assert.Equal(t, "SHIPPER", normalizeRole("owner"))
}
