package store

import (
	"context"
	"errors"
	"testing"

	"github.com/eventos/apiserver/internal/testutil"
	"github.com/eventos/apiserver/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(email, userName string, role types.Role) types.User {
	return types.User{
		Email:        email,
		UserName:     userName,
		PasswordHash: "hash",
		Name:         "Test " + userName,
		Role:         role,
	}
}

func TestCreateUserWithProfileAttendee(t *testing.T) {
	gdb := testutil.OpenInMemoryDB(t)
	repo := NewUserRepository(gdb)
	ctx := context.Background()

	created, err := repo.CreateUserWithProfile(ctx, newUser("a@x.com", "abc", types.RoleAttendee), types.ProfileFields{
		Name:  "A",
		Phone: "555-0100",
	})
	require.NoError(t, err)

	require.NotEqual(t, uuid.Nil, created.ID)
	require.NotNil(t, created.Attendee)
	assert.Nil(t, created.Organizer)
	assert.Equal(t, created.ID, created.Attendee.UserID)
	assert.Equal(t, "A", created.Attendee.Name)

	assert.EqualValues(t, 1, testutil.CountRows(t, gdb, "users"))
	assert.EqualValues(t, 1, testutil.CountRows(t, gdb, "attendees"))
	assert.EqualValues(t, 0, testutil.CountRows(t, gdb, "organizers"))
}

func TestCreateUserWithProfileOrganizer(t *testing.T) {
	gdb := testutil.OpenInMemoryDB(t)
	repo := NewUserRepository(gdb)

	created, err := repo.CreateUserWithProfile(context.Background(), newUser("o@x.com", "org", types.RoleOrganizer), types.ProfileFields{
		Name:         "O",
		Organization: "Acme Events",
		Website:      "https://acme.example",
	})
	require.NoError(t, err)

	require.NotNil(t, created.Organizer)
	assert.Nil(t, created.Attendee)
	assert.Equal(t, created.ID, created.Organizer.UserID)
	assert.Equal(t, "Acme Events", created.Organizer.Organization)

	assert.EqualValues(t, 1, testutil.CountRows(t, gdb, "users"))
	assert.EqualValues(t, 0, testutil.CountRows(t, gdb, "attendees"))
	assert.EqualValues(t, 1, testutil.CountRows(t, gdb, "organizers"))
}

func TestCreateUserWithProfileInvalidRoleRollsBack(t *testing.T) {
	gdb := testutil.OpenInMemoryDB(t)
	repo := NewUserRepository(gdb)

	_, err := repo.CreateUserWithProfile(context.Background(), newUser("admin@x.com", "admin", types.Role("admin")), types.ProfileFields{Name: "Admin"})
	require.ErrorIs(t, err, ErrInvalidRole)

	assert.EqualValues(t, 0, testutil.CountRows(t, gdb, "users"))
	assert.EqualValues(t, 0, testutil.CountRows(t, gdb, "attendees"))
	assert.EqualValues(t, 0, testutil.CountRows(t, gdb, "organizers"))
}

func TestRoleCheckConstraint(t *testing.T) {
	gdb := testutil.OpenInMemoryDB(t)

	user := newUser("admin@x.com", "admin", types.Role("admin"))
	err := gdb.Omit("Attendee", "Organizer").Create(&user).Error
	require.Error(t, err)
	assert.ErrorIs(t, translateError(err), ErrInvalidRole)
	assert.EqualValues(t, 0, testutil.CountRows(t, gdb, "users"))
}

func TestCreateUserWithProfileDuplicateKey(t *testing.T) {
	gdb := testutil.OpenInMemoryDB(t)
	repo := NewUserRepository(gdb)
	ctx := context.Background()

	_, err := repo.CreateUserWithProfile(ctx, newUser("a@x.com", "abc", types.RoleAttendee), types.ProfileFields{Name: "A"})
	require.NoError(t, err)

	_, err = repo.CreateUserWithProfile(ctx, newUser("a@x.com", "other", types.RoleOrganizer), types.ProfileFields{Name: "B"})
	var dupErr *DuplicateKeyError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "email", dupErr.Field)

	_, err = repo.CreateUserWithProfile(ctx, newUser("b@x.com", "abc", types.RoleOrganizer), types.ProfileFields{Name: "B"})
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "userName", dupErr.Field)

	assert.EqualValues(t, 1, testutil.CountRows(t, gdb, "users"))
	assert.EqualValues(t, 0, testutil.CountRows(t, gdb, "organizers"))
}

func TestFindExisting(t *testing.T) {
	gdb := testutil.OpenInMemoryDB(t)
	repo := NewUserRepository(gdb)
	ctx := context.Background()

	created, err := repo.CreateUserWithProfile(ctx, newUser("a@x.com", "abc", types.RoleAttendee), types.ProfileFields{Name: "A"})
	require.NoError(t, err)

	byEmail, err := repo.FindExisting(ctx, "a@x.com", "someone-else")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byUserName, err := repo.FindExisting(ctx, "new@x.com", "abc")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUserName.ID)
	assert.Nil(t, byUserName.Attendee)

	_, err = repo.FindExisting(ctx, "new@x.com", "new")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.FindExisting(ctx, "new@x.com", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindForLoginLoadsProfile(t *testing.T) {
	gdb := testutil.OpenInMemoryDB(t)
	repo := NewUserRepository(gdb)
	ctx := context.Background()

	_, err := repo.CreateUserWithProfile(ctx, newUser("o@x.com", "org", types.RoleOrganizer), types.ProfileFields{Name: "O"})
	require.NoError(t, err)

	user, err := repo.FindForLogin(ctx, "o@x.com", "")
	require.NoError(t, err)
	require.NotNil(t, user.Organizer)
	assert.Nil(t, user.Attendee)
	assert.Equal(t, "hash", user.PasswordHash)
}

func TestGetByID(t *testing.T) {
	gdb := testutil.OpenInMemoryDB(t)
	repo := NewUserRepository(gdb)
	ctx := context.Background()

	created, err := repo.CreateUserWithProfile(ctx, newUser("a@x.com", "abc", types.RoleAttendee), types.ProfileFields{Name: "A"})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, types.RoleAttendee, got.Role)
	require.NotNil(t, got.Attendee)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndListAttendees(t *testing.T) {
	gdb := testutil.OpenInMemoryDB(t)
	repo := NewUserRepository(gdb)
	ctx := context.Background()

	empty, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = repo.CreateUserWithProfile(ctx, newUser("a@x.com", "abc", types.RoleAttendee), types.ProfileFields{Name: "A"})
	require.NoError(t, err)
	_, err = repo.CreateUserWithProfile(ctx, newUser("o@x.com", "org", types.RoleOrganizer), types.ProfileFields{Name: "O"})
	require.NoError(t, err)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		switch u.Role {
		case types.RoleAttendee:
			assert.NotNil(t, u.Attendee)
			assert.Nil(t, u.Organizer)
		case types.RoleOrganizer:
			assert.NotNil(t, u.Organizer)
			assert.Nil(t, u.Attendee)
		}
	}

	attendees, err := repo.ListAttendees(ctx)
	require.NoError(t, err)
	require.Len(t, attendees, 1)
	require.NotNil(t, attendees[0].User)
	assert.Equal(t, "abc", attendees[0].User.UserName)
}

func TestSetAvatarKey(t *testing.T) {
	gdb := testutil.OpenInMemoryDB(t)
	repo := NewUserRepository(gdb)
	ctx := context.Background()

	created, err := repo.CreateUserWithProfile(ctx, newUser("a@x.com", "abc", types.RoleAttendee), types.ProfileFields{Name: "A"})
	require.NoError(t, err)

	require.NoError(t, repo.SetAvatarKey(ctx, created.ID, "avatars/"+created.ID.String()))
	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "avatars/"+created.ID.String(), got.AvatarKey)

	assert.ErrorIs(t, repo.SetAvatarKey(ctx, uuid.New(), "x"), ErrNotFound)
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil))

	pqDup := &pq.Error{Code: "23505", Constraint: "users_user_name_key"}
	var dupErr *DuplicateKeyError
	require.ErrorAs(t, translateError(pqDup), &dupErr)
	assert.Equal(t, "userName", dupErr.Field)
	assert.ErrorIs(t, dupErr, error(pqDup))

	pqCheck := &pq.Error{Code: "23514", Constraint: "users_role_check"}
	assert.ErrorIs(t, translateError(pqCheck), ErrInvalidRole)

	otherCheck := &pq.Error{Code: "23514", Constraint: "organizers_website_check"}
	assert.Same(t, error(otherCheck), translateError(otherCheck))

	other := errors.New("boom")
	assert.Same(t, other, translateError(other))
}
