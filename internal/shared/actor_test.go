package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorCustomerAccess(t *testing.T) {
	staff := Actor{ID: 1, Role: RoleStaff}
	customer := Actor{ID: 9, Role: RoleCustomer, CustomerID: 42}
	stranger := Actor{ID: 10, Role: RoleCustomer}

	require.True(t, staff.CanAccessCustomer(42))
	require.True(t, customer.CanAccessCustomer(42))
	require.False(t, customer.CanAccessCustomer(43))
	require.False(t, stranger.CanAccessCustomer(0))

	require.NoError(t, staff.RequireStaff())
	require.ErrorIs(t, customer.RequireStaff(), ErrForbidden)
}

func TestActorContextRoundTrip(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	require.False(t, ok)

	ctx := ContextWithActor(context.Background(), Actor{ID: 3, Role: RoleAdmin})
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, int64(3), actor.ID)
}

func TestUserSafeMessage(t *testing.T) {
	require.Equal(t, "", UserSafeMessage(nil))
	wrapped := fmt.Errorf("%w: total must not be negative", ErrValidation)
	require.Equal(t, wrapped.Error(), UserSafeMessage(wrapped))
	require.Equal(t, "Something went wrong, please try again", UserSafeMessage(errors.New("boom")))
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(3, 10, 45)
	require.Equal(t, 5, p.TotalPages)
	require.Equal(t, 20, p.Offset())

	p = NewPagination(0, 0, 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 0, p.Offset())
}
