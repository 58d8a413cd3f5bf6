package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitback/internal/model"
	"github.com/iliyamo/fitback/internal/notify"
)

func ptr[T any](v T) *T { return &v }

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "a@x.com", "Passw0rd!", "userA").User.ID

	_, err := f.users.UpdateProfile(ctx, id, model.Profile{})
	assert.Equal(t, KindValidation, KindOf(err))

	u, err := f.users.UpdateProfile(ctx, id, model.Profile{HeightCm: ptr(180.0), WeightKg: ptr(81.0)})
	require.NoError(t, err)
	require.NotNil(t, u.BMI)
	assert.Equal(t, 25.0, *u.BMI)

	u, err = f.users.Profile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 25.0, *u.BMI)

	_, err = f.users.UpdateProfile(ctx, 999, model.Profile{Age: ptr(30)})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCompleteProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "a@x.com", "Passw0rd!", "userA").User.ID

	_, err := f.users.CompleteProfile(ctx, id, model.Profile{Age: ptr(30)})
	assert.Equal(t, KindValidation, KindOf(err))

	u, err := f.users.CompleteProfile(ctx, id, model.Profile{
		Age: ptr(30), HeightCm: ptr(170.0), WeightKg: ptr(70.0), TargetWeightKg: ptr(65.0),
		Sex: ptr(false), Goal: ptr(model.GoalLoseWeight),
	})
	require.NoError(t, err)
	assert.True(t, u.ProfileComplete())

	stats, err := f.users.Stats(ctx, id)
	require.NoError(t, err)
	assert.True(t, stats.ProfileComplete)
	assert.Equal(t, 0, stats.DaysRegistered)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "a@x.com", "Passw0rd!", "userA").User.ID

	assert.Equal(t, KindInvalidPassword, KindOf(f.users.ChangePassword(ctx, id, "wrong", "NewPass1!")))
	assert.Equal(t, KindValidation, KindOf(f.users.ChangePassword(ctx, id, "Passw0rd!", "Passw0rd!")))

	require.NoError(t, f.users.ChangePassword(ctx, id, "Passw0rd!", "NewPass1!"))
	f.notifier.Wait()
	_, ok := f.box.last(notify.KindPasswordChanged)
	assert.True(t, ok)

	_, err := f.auth.Login(ctx, "a@x.com", "NewPass1!")
	assert.NoError(t, err)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "a@x.com", "Passw0rd!", "userA").User.ID

	require.NoError(t, f.users.DeleteAccount(ctx, id))
	assert.Equal(t, KindNotFound, KindOf(f.users.DeleteAccount(ctx, id)))
	_, err := f.auth.Login(ctx, "a@x.com", "Passw0rd!")
	assert.Equal(t, KindInvalidCredentials, KindOf(err))
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()
	f.mem.SetClock(func() time.Time { now = now.Add(time.Second); return now })
	for _, u := range []string{"u1", "u2", "u3"} {
		f.register(t, u+"@x.com", "Passw0rd!", u)
	}

	p, err := f.users.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Total)
	assert.Equal(t, 2, p.TotalPages)
	require.Len(t, p.Users, 2)
	assert.Equal(t, "u3", p.Users[0].Username)

	p, err = f.users.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, p.Users, 1)
	assert.Equal(t, "u1", p.Users[0].Username)

	p, err = f.users.List(ctx, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Len(t, p.Users, 3)
}
