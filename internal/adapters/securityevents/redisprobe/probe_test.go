package redisprobe

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/platform/logger"
)

func newProbe(t *testing.T, threshold int64) (*Probe, *miniredis.Miniredis, *bytes.Buffer) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var buf bytes.Buffer
	log := logger.New(logger.Options{Level: logger.Debug, Format: logger.FormatJSON, Output: &buf})
	return New(rdb, log, Options{Threshold: threshold, Window: time.Minute}), mr, &buf
}

func crossTenant(actorID string) authz.DecisionEvent {
	return authz.DecisionEvent{
		Actor:    authz.Actor{ID: actorID, TenantID: "t1", Role: authz.RoleContributor},
		Resource: authz.ResourceExpense,
		Action:   authz.ActionView,
		Decision: authz.Decision{Allowed: false, Reason: authz.ReasonCrossTenant},
	}
}

func TestProbe_AlertsOnceWhenThresholdCrossed(t *testing.T) {
	p, _, buf := newProbe(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p.ObserveDecision(ctx, crossTenant("mallory"))
	}

	n, err := p.Count(ctx, "mallory")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, 1, strings.Count(buf.String(), "cross-tenant probing suspected"))
	assert.Contains(t, buf.String(), `"count":3`)
}

func TestProbe_IgnoresOtherDecisions(t *testing.T) {
	p, mr, buf := newProbe(t, 1)
	ctx := context.Background()

	denied := crossTenant("alice")
	denied.Decision.Reason = authz.ReasonRoleDenied
	p.ObserveDecision(ctx, denied)

	failed := crossTenant("alice")
	failed.Err = authz.ErrUnknownRole
	p.ObserveDecision(ctx, failed)

	n, err := p.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, mr.Keys())
	assert.Empty(t, buf.String())
}

func TestProbe_WindowExpires(t *testing.T) {
	p, mr, _ := newProbe(t, 10)
	ctx := context.Background()

	p.ObserveDecision(ctx, crossTenant("mallory"))
	p.ObserveDecision(ctx, crossTenant("mallory"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"mallory"))

	mr.FastForward(2 * time.Minute)

	n, err := p.Count(ctx, "mallory")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProbe_RedisDownDoesNotPanic(t *testing.T) {
	p, mr, buf := newProbe(t, 1)
	mr.Close()

	p.ObserveDecision(context.Background(), crossTenant("mallory"))
	assert.Contains(t, buf.String(), "cross-tenant counter unavailable")
}
