package handlers_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskhub/internal/handlers/testutil"
	"github.com/charlesng35/taskhub/pkg/mail"
)

const password = "Sup3rSecret!"

func TestAuthHandler_RegisterLoginMe(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.Register("Alice", password)

	me := env.Request(http.MethodGet, "/api/auth/me", nil, alice.Token)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	var meData map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, me).Data, &meData)
	require.Equal(t, alice.ID, meData["id"])
	require.Equal(t, "alice@example.com", meData["email"])
	require.NotContains(t, me.Body.String(), "password\"")

	unauth := env.Request(http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, unauth.Code)
}

func TestAuthHandler_RegisterRejectsDuplicateEmail(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Register("Alice", password)

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"name":     "Other Alice",
		"email":    "ALICE@example.com",
		"password": password,
	}, "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "EMAIL_TAKEN", testutil.ErrorCode(t, w))
}

func TestAuthHandler_RegisterValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	missing := env.Request(http.MethodPost, "/api/auth/register", map[string]string{"name": "Bob"}, "")
	require.Equal(t, http.StatusBadRequest, missing.Code)
	require.Equal(t, "BAD_REQUEST", testutil.ErrorCode(t, missing))

	short := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"name":     "Bob",
		"email":    "bob@example.com",
		"password": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, short.Code)
	resp := testutil.DecodeResponse(t, short)
	require.Contains(t, resp.Error.Message, "at least 8")
}

func TestAuthHandler_LoginRejectsWrongPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Register("Alice", password)

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.ErrorCode(t, w))

	unknown := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": password,
	}, "")
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.ErrorCode(t, unknown))
}

func TestAuthHandler_ForgotPasswordIsSilentForUnknownEmail(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/password/forgot", map[string]string{
		"email": "ghost@example.com",
	}, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Zero(t, env.Outbox.Count(mail.KindPasswordReset))
}

func TestAuthHandler_ResetPasswordFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Register("Alice", password)

	w := env.Request(http.MethodPost, "/api/auth/password/forgot", map[string]string{
		"email": "alice@example.com",
	}, "")
	require.Equal(t, http.StatusAccepted, w.Code)

	link := env.Outbox.Last(t, mail.KindPasswordReset, "alice@example.com").Context["link"]
	target := testutil.LinkTarget(t, link)
	require.True(t, strings.HasPrefix(target, "/verify-reset-token/"))

	verify := env.Request(http.MethodGet, target, nil, "")
	require.Equal(t, http.StatusOK, verify.Code, verify.Body.String())

	resetPath := "/api/auth/password/reset/" + strings.TrimPrefix(target, "/verify-reset-token/")
	weak := env.Request(http.MethodPost, resetPath, map[string]string{"password": "short"}, "")
	require.Equal(t, http.StatusBadRequest, weak.Code)

	reset := env.Request(http.MethodPost, resetPath, map[string]string{"password": "N3wPassword!"}, "")
	require.Equal(t, http.StatusOK, reset.Code, reset.Body.String())

	replay := env.Request(http.MethodPost, resetPath, map[string]string{"password": "An0therPass!"}, "")
	require.Equal(t, http.StatusBadRequest, replay.Code)
	require.Equal(t, "INVALID_TOKEN", testutil.ErrorCode(t, replay))

	stale := env.Request(http.MethodGet, target, nil, "")
	require.Equal(t, http.StatusBadRequest, stale.Code)

	old := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": password,
	}, "")
	require.Equal(t, http.StatusUnauthorized, old.Code)

	env.Login("alice@example.com", "N3wPassword!")
	env.Outbox.Last(t, mail.KindPasswordChanged, "alice@example.com")
}

func TestAuthHandler_ResetGrantFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Register("Alice", password)

	w := env.Request(http.MethodPost, "/api/auth/password/forgot", map[string]string{
		"email": "alice@example.com",
	}, "")
	require.Equal(t, http.StatusAccepted, w.Code)

	link := env.Outbox.Last(t, mail.KindPasswordReset, "alice@example.com").Context["link"]
	credentials := strings.TrimPrefix(testutil.LinkTarget(t, link), "/verify-reset-token/")

	exchange := env.Request(http.MethodPost, "/api/auth/password/reset/"+credentials+"/exchange", nil, "")
	require.Equal(t, http.StatusOK, exchange.Code, exchange.Body.String())
	var payload struct {
		Grant string `json:"grant"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, exchange).Data, &payload)
	require.NotEmpty(t, payload.Grant)

	again := env.Request(http.MethodPost, "/api/auth/password/reset/"+credentials+"/exchange", nil, "")
	require.Equal(t, http.StatusBadRequest, again.Code)

	complete := env.Request(http.MethodPost, "/api/auth/password/complete", map[string]string{
		"grant":    payload.Grant,
		"password": "Gr4ntedPass!",
	}, "")
	require.Equal(t, http.StatusOK, complete.Code, complete.Body.String())

	reuse := env.Request(http.MethodPost, "/api/auth/password/complete", map[string]string{
		"grant":    payload.Grant,
		"password": "Gr4ntedAgain!",
	}, "")
	require.Equal(t, http.StatusBadRequest, reuse.Code)
	require.Equal(t, "INVALID_TOKEN", testutil.ErrorCode(t, reuse))

	env.Login("alice@example.com", "Gr4ntedPass!")
}

func TestAuthHandler_CompleteResetRejectsAccessToken(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.Register("Alice", password)

	w := env.Request(http.MethodPost, "/api/auth/password/complete", map[string]string{
		"grant":    alice.Token,
		"password": "N3wPassword!",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_TOKEN", testutil.ErrorCode(t, w))
}

func TestAuthHandler_RateLimitsTokenEndpoints(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithRateLimit(2, time.Minute))

	body := map[string]string{"email": "ghost@example.com"}
	for i := 0; i < 2; i++ {
		w := env.Request(http.MethodPost, "/api/auth/password/forgot", body, "")
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	limited := env.Request(http.MethodPost, "/api/auth/password/forgot", body, "")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", testutil.ErrorCode(t, limited))
	require.NotEmpty(t, limited.Header().Get("Retry-After"))
}
