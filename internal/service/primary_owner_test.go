package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
)

func TestPrimaryOwner_User(t *testing.T) {
	f := newFixture(t)
	api := f.addApi(t)

	owner, err := f.owners.GetApiPrimaryOwner(context.Background(), testOrg, api.ID)
	require.NoError(t, err)
	assert.Equal(t, &model.PrimaryOwner{
		ID:          testUser,
		Email:       "john.doe@example.com",
		DisplayName: "John Doe",
		Type:        model.MemberUser,
	}, owner)
}

func TestPrimaryOwner_GroupFallback(t *testing.T) {
	tests := []struct {
		name          string
		groupOwner    string
		expectedEmail string
	}{
		{name: "email from group api primary owner", groupOwner: "user-2", expectedEmail: "jane@example.com"},
		{name: "no api primary owner", groupOwner: "", expectedEmail: ""},
		{name: "unknown api primary owner user", groupOwner: "ghost", expectedEmail: ""},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.addUser(t, "user-2", "Jane", "", "jane@example.com")
			f.addGroup(t, "group-1", "Platform team", test.groupOwner)

			require.NoError(t, f.store.CreateMembership(ctx, &model.Membership{
				ID:            "m-app",
				MemberID:      "group-1",
				MemberType:    model.MemberGroup,
				ReferenceType: model.ReferenceApplication,
				ReferenceID:   "app-1",
				RoleID:        "APPLICATION_" + model.RolePrimaryOwner,
			}))

			owner, err := f.owners.GetApplicationPrimaryOwner(ctx, testOrg, "app-1")
			require.NoError(t, err)
			assert.Equal(t, "group-1", owner.ID)
			assert.Equal(t, "Platform team", owner.DisplayName)
			assert.Equal(t, model.MemberGroup, owner.Type)
			assert.Equal(t, test.expectedEmail, owner.Email)
		})
	}
}

func TestPrimaryOwner_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.owners.GetIntegrationPrimaryOwner(ctx, testOrg, "integration-1")
	var poErr *PrimaryOwnerNotFoundError
	require.ErrorAs(t, err, &poErr)
	assert.Equal(t, model.ReferenceIntegration, poErr.ReferenceType)
	assert.Equal(t, "integration-1", poErr.ReferenceID)

	_, err = f.owners.GetApiPrimaryOwner(ctx, "OTHER_ORG", "api-1")
	assert.ErrorAs(t, err, &poErr, "an organization without the role has no primary owner")

	require.NoError(t, f.store.CreateMembership(ctx, &model.Membership{
		ID:            "m-deleted-user",
		MemberID:      "deleted-user",
		MemberType:    model.MemberUser,
		ReferenceType: model.ReferenceAPI,
		ReferenceID:   "api-2",
		RoleID:        "API_" + model.RolePrimaryOwner,
	}))
	_, err = f.owners.GetApiPrimaryOwner(ctx, testOrg, "api-2")
	assert.ErrorAs(t, err, &poErr)
}

func TestPrimaryOwner_TransferDemotesPreviousOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.addApi(t)
	f.addUser(t, "user-2", "Jane", "Roe", "jane@example.com")

	owner, err := f.owners.TransferOwnership(ctx, f.ec, model.ReferenceAPI, api.ID, "user-2", model.MemberUser)
	require.NoError(t, err)
	assert.Equal(t, "user-2", owner.ID)

	current, err := f.owners.GetApiPrimaryOwner(ctx, testOrg, api.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", current.DisplayName)

	previous, err := f.store.FindMemberships(ctx, repository.MembershipQuery{
		ReferenceType: model.ReferenceAPI,
		ReferenceID:   api.ID,
		MemberID:      testUser,
	})
	require.NoError(t, err)
	require.Len(t, previous, 1)
	assert.Equal(t, "API_"+model.RoleOwner, previous[0].RoleID)

	assert.Equal(t, []string{model.EventMembershipUpdated, model.EventMembershipCreated}, f.auditEvents())

	_, err = f.owners.TransferOwnership(ctx, f.ec, model.ReferenceAPI, api.ID, "user-2", model.MemberUser)
	assert.ErrorIs(t, err, ErrTransferToCurrentOwner)
}

func TestPrimaryOwner_TransferWithoutOwnerRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "user-2", "Jane", "Roe", "jane@example.com")
	f.addGroup(t, "group-1", "Ops", "user-2")

	require.NoError(t, f.store.CreateRole(ctx, &model.Role{
		ID:             "GROUP_PO",
		OrganizationID: testOrg,
		Scope:          model.ReferenceGroup,
		Name:           model.RolePrimaryOwner,
	}))
	require.NoError(t, f.store.CreateMembership(ctx, &model.Membership{
		ID:            "m-group",
		MemberID:      testUser,
		MemberType:    model.MemberUser,
		ReferenceType: model.ReferenceGroup,
		ReferenceID:   "group-x",
		RoleID:        "GROUP_PO",
	}))

	owner, err := f.owners.TransferOwnership(ctx, f.ec, model.ReferenceGroup, "group-x", "group-1", model.MemberGroup)
	require.NoError(t, err)
	assert.Equal(t, model.MemberGroup, owner.Type)
	assert.Equal(t, "jane@example.com", owner.Email)

	remaining, err := f.store.FindMemberships(ctx, repository.MembershipQuery{
		ReferenceType: model.ReferenceGroup,
		ReferenceID:   "group-x",
		MemberID:      testUser,
	})
	require.NoError(t, err)
	assert.Empty(t, remaining, "previous owner is removed when the scope has no OWNER role")
}

func TestPrimaryOwner_TransferToUnknownMember(t *testing.T) {
	f := newFixture(t)
	api := f.addApi(t)

	_, err := f.owners.TransferOwnership(context.Background(), f.ec, model.ReferenceAPI, api.ID, "nobody", model.MemberUser)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, KindUser, nf.Kind)
}
