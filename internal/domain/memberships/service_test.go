package memberships_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-tracker/internal/adapters/storage/memory"
	"project-tracker/internal/domain/authz"
	"project-tracker/internal/domain/memberships"
)

type staticCaps map[string]bool

func (c staticCaps) Has(ctx context.Context, userID, capability string) (bool, error) {
	return c[userID+"|"+capability], nil
}

type failingCaps struct{}

func (failingCaps) Has(ctx context.Context, userID, capability string) (bool, error) {
	return false, errors.New("upstream down")
}

type recorder struct{ events []authz.DecisionEvent }

func (r *recorder) ObserveDecision(ctx context.Context, ev authz.DecisionEvent) {
	r.events = append(r.events, ev)
}

func newService(t *testing.T) (*memberships.Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	engine := authz.NewEngine(authz.Default(), rec)
	caps := staticCaps{"root|platform:admin": true}
	return memberships.NewService(memory.NewMembershipRepo(), engine, caps), rec
}

// seedTenant crea un tenant con "root" como admin y devuelve su actor.
func seedTenant(t *testing.T, svc *memberships.Service, name string) authz.Actor {
	t.Helper()
	tenant, founder, err := svc.CreateTenant(context.Background(), "root", name)
	require.NoError(t, err)
	require.Equal(t, tenant.ID, founder.TenantID)
	require.Equal(t, authz.RoleAdmin, founder.Role)
	require.Equal(t, memberships.StatusActive, founder.Status)
	return founder.Actor()
}

func join(t *testing.T, svc *memberships.Service, admin authz.Actor, userID string, role authz.Role) memberships.Membership {
	t.Helper()
	ctx := context.Background()
	m, err := svc.Invite(ctx, admin, memberships.InviteInput{ActorID: userID, Role: role})
	require.NoError(t, err)
	m, err = svc.Accept(ctx, userID, m.ID)
	require.NoError(t, err)
	return m
}

func TestCreateTenant_RequiresPlatformCapability(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, _, err := svc.CreateTenant(ctx, "mallory", "acme")
	assert.ErrorIs(t, err, memberships.ErrForbidden)

	_, _, err = svc.CreateTenant(ctx, "root", "  ")
	assert.ErrorIs(t, err, memberships.ErrInvalidInput)

	noCaps := memberships.NewService(memory.NewMembershipRepo(), authz.NewEngine(authz.Default()), nil)
	_, _, err = noCaps.CreateTenant(ctx, "root", "acme")
	assert.ErrorIs(t, err, memberships.ErrForbidden)

	broken := memberships.NewService(memory.NewMembershipRepo(), authz.NewEngine(authz.Default()), failingCaps{})
	_, _, err = broken.CreateTenant(ctx, "root", "acme")
	require.Error(t, err)
	assert.NotErrorIs(t, err, memberships.ErrForbidden)
}

func TestInviteAccept_Lifecycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	admin := seedTenant(t, svc, "acme")

	inv, err := svc.Invite(ctx, admin, memberships.InviteInput{ActorID: "alice", Role: authz.RoleContributor})
	require.NoError(t, err)
	assert.Equal(t, memberships.StatusInvited, inv.Status)
	assert.Equal(t, "root", inv.InvitedBy)

	// invitada todavía no es actor
	_, err = svc.ResolveActor(ctx, admin.TenantID, "alice", "")
	assert.ErrorIs(t, err, authz.ErrNotMember)

	// re-invitar actualiza la misma invitación
	again, err := svc.Invite(ctx, admin, memberships.InviteInput{ActorID: "alice", Role: authz.RoleSupplierManager})
	require.NoError(t, err)
	assert.Equal(t, inv.ID, again.ID)
	assert.Equal(t, authz.RoleSupplierManager, again.Role)

	// otro usuario no puede aceptar, ni enterarse de que existe
	_, err = svc.Accept(ctx, "bob", inv.ID)
	assert.ErrorIs(t, err, memberships.ErrNotFound)

	m, err := svc.Accept(ctx, "alice", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, memberships.StatusActive, m.Status)

	// idempotente
	m2, err := svc.Accept(ctx, "alice", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, m.UpdatedAt, m2.UpdatedAt)

	_, err = svc.Invite(ctx, admin, memberships.InviteInput{ActorID: "alice", Role: authz.RoleViewer})
	assert.ErrorIs(t, err, memberships.ErrAlreadyMember)

	actor, err := svc.ResolveActor(ctx, admin.TenantID, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, authz.Actor{ID: "alice", TenantID: admin.TenantID, Role: authz.RoleSupplierManager}, actor)
}

func TestInvite_OnlyAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	admin := seedTenant(t, svc, "acme")
	join(t, svc, admin, "carla", authz.RoleCustomerManager)

	carla, err := svc.ResolveActor(ctx, admin.TenantID, "carla", "")
	require.NoError(t, err)

	_, err = svc.Invite(ctx, carla, memberships.InviteInput{ActorID: "dan", Role: authz.RoleViewer})
	assert.ErrorIs(t, err, memberships.ErrForbidden)

	_, err = svc.Invite(ctx, admin, memberships.InviteInput{ActorID: "dan", Role: authz.Role("owner")})
	assert.ErrorIs(t, err, memberships.ErrInvalidInput)
}

func TestChangeRole_SeenOnNextResolve(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	admin := seedTenant(t, svc, "acme")
	m := join(t, svc, admin, "alice", authz.RoleContributor)

	before, err := svc.ResolveActor(ctx, admin.TenantID, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleContributor, before.Role)

	_, err = svc.ChangeRole(ctx, admin, m.ID, authz.RoleFinanceSupplier)
	require.NoError(t, err)

	after, err := svc.ResolveActor(ctx, admin.TenantID, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleFinanceSupplier, after.Role)

	// un no-admin no cambia roles, ni siquiera el propio
	_, err = svc.ChangeRole(ctx, after, m.ID, authz.RoleAdmin)
	assert.ErrorIs(t, err, memberships.ErrForbidden)
}

func TestAdmin_CannotChangeOrRevokeOwnMembership(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	admin := seedTenant(t, svc, "acme")

	mine, err := svc.ListMine(ctx, "root", memberships.StatusActive)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	_, err = svc.ChangeRole(ctx, admin, mine[0].ID, authz.RoleViewer)
	assert.ErrorIs(t, err, memberships.ErrForbidden)

	_, err = svc.Revoke(ctx, admin, mine[0].ID)
	assert.ErrorIs(t, err, memberships.ErrForbidden)
}

func TestRevoke_DestroysActor(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	admin := seedTenant(t, svc, "acme")
	m := join(t, svc, admin, "alice", authz.RoleContributor)

	revoked, err := svc.Revoke(ctx, admin, m.ID)
	require.NoError(t, err)
	assert.Equal(t, memberships.StatusRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)
	assert.Equal(t, revoked.UpdatedAt, *revoked.RevokedAt)

	_, err = svc.ResolveActor(ctx, admin.TenantID, "alice", "")
	assert.ErrorIs(t, err, authz.ErrNotMember)

	// idempotente
	_, err = svc.Revoke(ctx, admin, m.ID)
	require.NoError(t, err)

	_, err = svc.ChangeRole(ctx, admin, m.ID, authz.RoleViewer)
	assert.ErrorIs(t, err, memberships.ErrBadState)

	_, err = svc.Accept(ctx, "alice", m.ID)
	assert.ErrorIs(t, err, memberships.ErrBadState)

	// se puede volver a invitar: nueva membresía
	inv, err := svc.Invite(ctx, admin, memberships.InviteInput{ActorID: "alice", Role: authz.RoleViewer})
	require.NoError(t, err)
	assert.NotEqual(t, m.ID, inv.ID)
}

// interleavedRepo corre between una sola vez, justo después de la primera
// lectura por ID: simula otra request que escribe entre la lectura y la escritura.
type interleavedRepo struct {
	memberships.Repository
	between func()
}

func (r *interleavedRepo) GetByID(ctx context.Context, id string) (memberships.Membership, error) {
	m, err := r.Repository.GetByID(ctx, id)
	if fn := r.between; fn != nil {
		r.between = nil
		fn()
	}
	return m, err
}

func newInterleavedService(t *testing.T) (*memberships.Service, *interleavedRepo) {
	t.Helper()
	repo := &interleavedRepo{Repository: memory.NewMembershipRepo()}
	caps := staticCaps{"root|platform:admin": true}
	return memberships.NewService(repo, authz.NewEngine(authz.Default()), caps), repo
}

func TestChangeRole_LosesToConcurrentRevoke(t *testing.T) {
	svc, repo := newInterleavedService(t)
	ctx := context.Background()
	admin := seedTenant(t, svc, "acme")
	m := join(t, svc, admin, "bob", authz.RoleContributor)

	repo.between = func() {
		_, err := svc.Revoke(ctx, admin, m.ID)
		require.NoError(t, err)
	}
	_, err := svc.ChangeRole(ctx, admin, m.ID, authz.RoleSupplierManager)
	assert.ErrorIs(t, err, memberships.ErrStaleState)

	// la revocación se mantiene
	_, err = svc.ResolveActor(ctx, admin.TenantID, "bob", "")
	assert.ErrorIs(t, err, authz.ErrNotMember)
}

func TestAccept_LosesToConcurrentRevoke(t *testing.T) {
	svc, repo := newInterleavedService(t)
	ctx := context.Background()
	admin := seedTenant(t, svc, "acme")
	inv, err := svc.Invite(ctx, admin, memberships.InviteInput{ActorID: "bob", Role: authz.RoleViewer})
	require.NoError(t, err)

	repo.between = func() {
		_, err := svc.Revoke(ctx, admin, inv.ID)
		require.NoError(t, err)
	}
	_, err = svc.Accept(ctx, "bob", inv.ID)
	assert.ErrorIs(t, err, memberships.ErrStaleState)

	_, err = svc.ResolveActor(ctx, admin.TenantID, "bob", "")
	assert.ErrorIs(t, err, authz.ErrNotMember)
}

func TestRevoke_LosesToConcurrentAccept(t *testing.T) {
	svc, repo := newInterleavedService(t)
	ctx := context.Background()
	admin := seedTenant(t, svc, "acme")
	inv, err := svc.Invite(ctx, admin, memberships.InviteInput{ActorID: "bob", Role: authz.RoleViewer})
	require.NoError(t, err)

	// Revoke leyó "invited"; la aceptación gana y la revocación debe reintentarse.
	repo.between = func() {
		_, err := svc.Accept(ctx, "bob", inv.ID)
		require.NoError(t, err)
	}
	_, err = svc.Revoke(ctx, admin, inv.ID)
	assert.ErrorIs(t, err, memberships.ErrStaleState)

	_, err = svc.Revoke(ctx, admin, inv.ID)
	require.NoError(t, err)
	_, err = svc.ResolveActor(ctx, admin.TenantID, "bob", "")
	assert.ErrorIs(t, err, authz.ErrNotMember)
}

func TestConcurrentChangeRoleAndRevoke_RevokeSticks(t *testing.T) {
	svc := memberships.NewService(memory.NewMembershipRepo(), authz.NewEngine(authz.Default()), staticCaps{"root|platform:admin": true})
	ctx := context.Background()
	admin := seedTenant(t, svc, "acme")

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = join(t, svc, admin, u, authz.RoleContributor).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		id := id
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.ChangeRole(ctx, admin, id, authz.RoleSupplierManager)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Revoke(ctx, admin, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, memberships.ErrStaleState) || errors.Is(err, memberships.ErrBadState), err)
		}
	}
	for _, u := range users {
		_, err := svc.ResolveActor(ctx, admin.TenantID, u, "")
		assert.ErrorIs(t, err, authz.ErrNotMember, u)
	}
}

func TestAdminOfOneTenant_CannotTouchAnother(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	acme := seedTenant(t, svc, "acme")
	globex := seedTenant(t, svc, "globex")
	m := join(t, svc, globex, "alice", authz.RoleContributor)

	// mismo usuario "root" pero actor de acme
	_, err := svc.Revoke(ctx, acme, m.ID)
	assert.ErrorIs(t, err, memberships.ErrNotFound)

	var cross int
	for _, ev := range rec.events {
		if ev.Decision.Reason == authz.ReasonCrossTenant {
			cross++
		}
	}
	assert.Equal(t, 1, cross)

	list, err := svc.List(ctx, acme)
	require.NoError(t, err)
	for _, item := range list {
		assert.Equal(t, acme.TenantID, item.TenantID)
	}
}

func TestResolveActor_Impersonation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	admin := seedTenant(t, svc, "acme")
	join(t, svc, admin, "alice", authz.RoleContributor)

	a, err := svc.ResolveActor(ctx, admin.TenantID, "root", "viewer")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleAdmin, a.Role)
	assert.Equal(t, authz.RoleViewer, a.EffectiveRole)
	assert.True(t, a.Impersonating())

	_, err = svc.ResolveActor(ctx, admin.TenantID, "alice", "admin")
	assert.ErrorIs(t, err, authz.ErrImpersonation)

	_, err = svc.ResolveActor(ctx, admin.TenantID, "root", "superuser")
	assert.ErrorIs(t, err, authz.ErrUnknownRole)

	_, err = svc.ResolveActor(ctx, "other-tenant", "root", "")
	assert.ErrorIs(t, err, authz.ErrNotMember)
}

func TestListMine_FiltersByStatus(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	acme := seedTenant(t, svc, "acme")
	globex := seedTenant(t, svc, "globex")

	join(t, svc, acme, "alice", authz.RoleViewer)
	_, err := svc.Invite(ctx, globex, memberships.InviteInput{ActorID: "alice", Role: authz.RoleContributor})
	require.NoError(t, err)

	all, err := svc.ListMine(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	invited, err := svc.ListMine(ctx, "alice", memberships.StatusInvited)
	require.NoError(t, err)
	require.Len(t, invited, 1)
	assert.Equal(t, globex.TenantID, invited[0].TenantID)

	_, err = svc.ListMine(ctx, " ")
	assert.ErrorIs(t, err, memberships.ErrInvalidInput)
}
