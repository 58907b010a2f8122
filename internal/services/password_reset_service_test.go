package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/tokens"
	"github.com/charlesng35/taskhub/pkg/mail"
)

func TestPasswordResetRedeemsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Grace")

	require.NoError(t, env.resets.RequestReset(ctx, "  GRACE@example.com "))

	note := env.notifier.last(t, mail.KindPasswordReset)
	require.Equal(t, user.Email, note.Recipient)
	require.Equal(t, "Grace", note.Context["name"])
	id, secret := pathCredentials(t, note.Context["link"])
	require.Contains(t, note.Context["link"], testBaseURL+"/verify-reset-token/")

	var row models.ActionToken
	require.NoError(t, env.db.First(&row, "id = ?", id).Error)
	require.Equal(t, tokens.ResetPasswordSubject(user.ID), row.SubjectKey)
	require.NotEqual(t, secret, row.TokenHash)

	require.NoError(t, env.resets.VerifyResetToken(ctx, id, secret))
	require.NoError(t, env.resets.ResetPassword(ctx, id, secret, "brand-new-pass"))

	_, err := env.users.Authenticate(ctx, user.Email, "brand-new-pass")
	require.NoError(t, err)
	_, err = env.users.Authenticate(ctx, user.Email, testPassword)
	requireKind(t, err, KindInvalidCredentials)

	requireKind(t, env.resets.ResetPassword(ctx, id, secret, "another-pass-1"), KindInvalidToken)
	requireKind(t, env.resets.VerifyResetToken(ctx, id, secret), KindInvalidToken)
	require.Equal(t, 1, env.notifier.count(mail.KindPasswordChanged))
}

func TestPasswordResetReissueInvalidatesEarlierLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Alan")

	require.NoError(t, env.resets.RequestReset(ctx, user.Email))
	firstID, firstSecret := pathCredentials(t, env.notifier.last(t, mail.KindPasswordReset).Context["link"])

	require.NoError(t, env.resets.RequestReset(ctx, user.Email))
	secondID, secondSecret := pathCredentials(t, env.notifier.last(t, mail.KindPasswordReset).Context["link"])

	requireKind(t, env.resets.ResetPassword(ctx, firstID, firstSecret, "brand-new-pass"), KindInvalidToken)
	require.NoError(t, env.resets.ResetPassword(ctx, secondID, secondSecret, "brand-new-pass"))

	var count int64
	require.NoError(t, env.db.Model(&models.ActionToken{}).
		Where("subject_key = ?", tokens.ResetPasswordSubject(user.ID)).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestPasswordResetExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Ada")

	require.NoError(t, env.resets.RequestReset(ctx, user.Email))
	id, secret := pathCredentials(t, env.notifier.last(t, mail.KindPasswordReset).Context["link"])

	env.clock.Advance(16 * time.Minute)
	requireKind(t, env.resets.ResetPassword(ctx, id, secret, "brand-new-pass"), KindInvalidToken)
}

func TestPasswordResetSilentForUnknownAndInactive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Edsger")
	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)

	require.NoError(t, env.resets.RequestReset(ctx, "nobody@example.com"))
	require.NoError(t, env.resets.RequestReset(ctx, user.Email))
	require.Zero(t, env.notifier.count(mail.KindPasswordReset))

	var count int64
	require.NoError(t, env.db.Model(&models.ActionToken{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestPasswordResetRejectsWeakPasswordWithoutConsuming(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Barbara")

	require.NoError(t, env.resets.RequestReset(ctx, user.Email))
	id, secret := pathCredentials(t, env.notifier.last(t, mail.KindPasswordReset).Context["link"])

	requireKind(t, env.resets.ResetPassword(ctx, id, secret, "short"), KindInvalidInput)
	require.NoError(t, env.resets.ResetPassword(ctx, id, secret, "long-enough-pass"))
}

func TestPasswordResetGrantFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Ken")

	require.NoError(t, env.resets.RequestReset(ctx, user.Email))
	id, secret := pathCredentials(t, env.notifier.last(t, mail.KindPasswordReset).Context["link"])

	grant, err := env.resets.ExchangeResetToken(ctx, id, secret)
	require.NoError(t, err)
	require.NotEmpty(t, grant)

	_, err = env.resets.ExchangeResetToken(ctx, id, secret)
	requireKind(t, err, KindInvalidToken)

	_, err = env.jwt.ValidateAccessToken(grant)
	require.Error(t, err)

	require.NoError(t, env.resets.CompleteReset(ctx, grant, "grant-new-pass"))
	_, err = env.users.Authenticate(ctx, user.Email, "grant-new-pass")
	require.NoError(t, err)

	requireKind(t, env.resets.CompleteReset(ctx, grant, "grant-other-pass"), KindInvalidToken)
	requireKind(t, env.resets.CompleteReset(ctx, "not-a-jwt", "grant-other-pass"), KindInvalidToken)
}

func TestPasswordResetGrantSurvivesEarlierChangeInSameSecond(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Lena")

	env.clock.Advance(300 * time.Millisecond)
	require.NoError(t, env.resets.RequestReset(ctx, user.Email))
	id, secret := pathCredentials(t, env.notifier.last(t, mail.KindPasswordReset).Context["link"])
	require.NoError(t, env.resets.ResetPassword(ctx, id, secret, "first-new-pass"))

	env.clock.Advance(400 * time.Millisecond)
	require.NoError(t, env.resets.RequestReset(ctx, user.Email))
	id, secret = pathCredentials(t, env.notifier.last(t, mail.KindPasswordReset).Context["link"])
	grant, err := env.resets.ExchangeResetToken(ctx, id, secret)
	require.NoError(t, err)

	require.NoError(t, env.resets.CompleteReset(ctx, grant, "second-new-pass"))
	_, err = env.users.Authenticate(ctx, user.Email, "second-new-pass")
	require.NoError(t, err)

	requireKind(t, env.resets.CompleteReset(ctx, grant, "third-new-pass"), KindInvalidToken)
}

func TestPasswordResetGrantInvalidatedByLaterChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "Milo")

	exchange := func() string {
		t.Helper()
		require.NoError(t, env.resets.RequestReset(ctx, user.Email))
		id, secret := pathCredentials(t, env.notifier.last(t, mail.KindPasswordReset).Context["link"])
		grant, err := env.resets.ExchangeResetToken(ctx, id, secret)
		require.NoError(t, err)
		return grant
	}

	// A fresh link for the same user re-arms the token row the grant points at.
	stale := exchange()
	env.clock.Advance(2 * time.Second)
	require.NoError(t, env.resets.RequestReset(ctx, user.Email))
	requireKind(t, env.resets.CompleteReset(ctx, stale, "milo-new-pass"), KindInvalidToken)

	// So does a newer exchange of that row, even though it is consumed again.
	env.clock.Advance(2 * time.Second)
	older := exchange()
	env.clock.Advance(2 * time.Second)
	newer := exchange()
	requireKind(t, env.resets.CompleteReset(ctx, older, "milo-new-pass"), KindInvalidToken)

	// A password change through another link also ends the grant.
	env.clock.Advance(2 * time.Second)
	require.NoError(t, env.resets.RequestReset(ctx, user.Email))
	id, secret := pathCredentials(t, env.notifier.last(t, mail.KindPasswordReset).Context["link"])
	requireKind(t, env.resets.CompleteReset(ctx, newer, "milo-new-pass"), KindInvalidToken)
	require.NoError(t, env.resets.ResetPassword(ctx, id, secret, "milo-link-pass"))
	requireKind(t, env.resets.CompleteReset(ctx, newer, "milo-grant-pass"), KindInvalidToken)
}
