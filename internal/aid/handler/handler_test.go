package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidpool/internal/aid/service"
	"aidpool/internal/aid/store/donation"
	"aidpool/internal/aid/store/request"
	"aidpool/internal/platform/logger"
	"aidpool/internal/platform/middleware"
	id "aidpool/pkg/domain"
)

const signingKey = "test-signing-key"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	svc, err := service.New(request.NewMemory(), donation.NewMemory())
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)

	auth := middleware.NewAuthenticator(signingKey)
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		New(svc, logger.New()).Register(r)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

type tokenClaims struct {
	subject             id.ActorID
	role                id.Role
	university          string
	approved            bool
	verifiedBeneficiary bool
}

func mintToken(t *testing.T, tc tokenClaims) string {
	t.Helper()
	claims := middleware.Claims{
		Role:                string(tc.role),
		University:          tc.university,
		Approved:            tc.approved,
		VerifiedBeneficiary: tc.verifiedBeneficiary,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tc.subject.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	require.NoError(t, err)
	return token
}

func requesterToken(t *testing.T) string {
	return mintToken(t, tokenClaims{
		subject: id.NewActorID(), role: id.RoleRequester, university: "state-u",
		approved: true, verifiedBeneficiary: true,
	})
}

func adminToken(t *testing.T) string {
	return mintToken(t, tokenClaims{subject: id.NewActorID(), role: id.RoleAdmin, university: "state-u"})
}

func do(t *testing.T, server *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, server.URL+path, payload)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAuthenticationRequired(t *testing.T) {
	server := newServer(t)

	resp := do(t, server, http.MethodGet, "/requests/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, server, http.MethodGet, "/requests/mine", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubmitEndpoint(t *testing.T) {
	server := newServer(t)
	token := requesterToken(t)

	t.Run("creates the request", func(t *testing.T) {
		resp := do(t, server, http.MethodPost, "/requests", token, SubmitRequest{
			Category: "food", Kind: "financial", Tier: "1-250", Justification: "groceries",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody[RequestResponse](t, resp)
		assert.Equal(t, "pending_admin", body.Status)
		assert.Equal(t, int64(250), body.AmountMax)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		raw := map[string]any{"category": "food", "kind": "financial", "tier": "1-250", "surprise": true}
		resp := do(t, server, http.MethodPost, "/requests", token, raw)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("maps validation errors to 400", func(t *testing.T) {
		resp := do(t, server, http.MethodPost, "/requests", token, SubmitRequest{
			Category: "transport", Kind: "financial", Tier: "1-250",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTransitionEndpoint(t *testing.T) {
	server := newServer(t)
	requester := requesterToken(t)

	created := do(t, server, http.MethodPost, "/requests", requester, SubmitRequest{
		Category: "food", Kind: "financial", Tier: "1-250",
	})
	require.Equal(t, http.StatusCreated, created.StatusCode)
	submitted := decodeBody[RequestResponse](t, created)

	t.Run("unknown action", func(t *testing.T) {
		resp := do(t, server, http.MethodPost,
			fmt.Sprintf("/requests/%s/transition", submitted.ID), adminToken(t),
			TransitionRequest{Action: "teleport"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed request id", func(t *testing.T) {
		resp := do(t, server, http.MethodPost, "/requests/not-a-uuid/transition", adminToken(t),
			TransitionRequest{Action: "reject", Reason: "no"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("requester may not verify", func(t *testing.T) {
		resp := do(t, server, http.MethodPost,
			fmt.Sprintf("/requests/%s/transition", submitted.ID), requester,
			TransitionRequest{Action: "verify"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("verify degrades to waiting_funds on an empty pool", func(t *testing.T) {
		resp := do(t, server, http.MethodPost,
			fmt.Sprintf("/requests/%s/transition", submitted.ID), adminToken(t),
			TransitionRequest{Action: "verify"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[RequestResponse](t, resp)
		assert.Equal(t, "waiting_funds", body.Status)
	})

	t.Run("illegal transition maps to 409", func(t *testing.T) {
		resp := do(t, server, http.MethodPost,
			fmt.Sprintf("/requests/%s/transition", submitted.ID), adminToken(t),
			TransitionRequest{Action: "verify"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestDonationEndpoints(t *testing.T) {
	server := newServer(t)
	donor := mintToken(t, tokenClaims{subject: id.NewActorID(), role: id.RoleDonor})
	admin := adminToken(t)

	resp := do(t, server, http.MethodPost, "/donations", donor, DonationRequest{
		Kind: "financial", Amount: 750, Reference: "pay-42",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	recorded := decodeBody[DonationResponse](t, resp)
	assert.Equal(t, "pending", recorded.Status)

	t.Run("confirm via gateway callback", func(t *testing.T) {
		resp := do(t, server, http.MethodPost, "/donations/confirm", admin,
			ConfirmDonationRequest{Reference: "pay-42"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[DonationResponse](t, resp)
		assert.Equal(t, "confirmed", body.Status)
	})

	t.Run("unknown reference maps to 404", func(t *testing.T) {
		resp := do(t, server, http.MethodPost, "/donations/confirm", admin,
			ConfirmDonationRequest{Reference: "pay-999"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("listing is admin-only", func(t *testing.T) {
		resp := do(t, server, http.MethodGet, "/donations", admin, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[[]DonationResponse](t, resp)
		require.Len(t, body, 1)
		assert.Equal(t, recorded.ID, body[0].ID)

		resp = do(t, server, http.MethodGet, "/donations", donor, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("pool summary", func(t *testing.T) {
		resp := do(t, server, http.MethodGet, "/pool/summary", admin, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[service.PoolSummary](t, resp)
		assert.Equal(t, int64(750), body.AvailableBalance)
	})
}
