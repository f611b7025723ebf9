package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-server/services/groupchat-api/internal/domain/identity"
)

func int64Ptr(v int64) *int64 { return &v }

func TestNewPredicate(t *testing.T) {
	t.Run("employee uses employee column", func(t *testing.T) {
		p, ok := NewPredicate(3, identity.New(9, "employee", ""))
		require.True(t, ok)
		require.NotNil(t, p.EmployeeID)
		assert.Nil(t, p.CustomerID)
		assert.Equal(t, int64(9), *p.EmployeeID)
	})

	t.Run("admin uses employee column", func(t *testing.T) {
		p, ok := NewPredicate(3, identity.New(1, "admin", ""))
		require.True(t, ok)
		require.NotNil(t, p.EmployeeID)
		assert.Equal(t, int64(1), *p.EmployeeID)
	})

	t.Run("customer uses customer column", func(t *testing.T) {
		p, ok := NewPredicate(3, identity.New(9, "customer", ""))
		require.True(t, ok)
		require.NotNil(t, p.CustomerID)
		assert.Nil(t, p.EmployeeID)
	})

	t.Run("unknown type is never a member", func(t *testing.T) {
		_, ok := NewPredicate(3, identity.New(9, "auditor", ""))
		assert.False(t, ok)
	})
}

func TestPredicate_MatchesDoesNotCrossColumns(t *testing.T) {
	employeeRow := Membership{GroupID: 3, EmployeeID: int64Ptr(9)}
	customerRow := Membership{GroupID: 3, CustomerID: int64Ptr(9)}

	p, _ := NewPredicate(3, identity.New(9, "customer", ""))
	assert.False(t, p.Matches(employeeRow))
	assert.True(t, p.Matches(customerRow))

	other, _ := NewPredicate(4, identity.New(9, "customer", ""))
	assert.False(t, other.Matches(customerRow))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("")
	assert.True(t, ok)
	assert.Equal(t, RoleMember, r)

	r, ok = ParseRole("ADMIN")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("owner")
	assert.False(t, ok)
}
