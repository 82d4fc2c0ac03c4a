package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultcore/audit"
	"vaultcore/crypto"
	"vaultcore/native/vault"
	"vaultcore/storage"
)

func rpcTestAddress(t *testing.T, prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	t.Helper()
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(prefix, raw)
}

func newTestServer(t *testing.T) (*Server, crypto.Address) {
	t.Helper()
	t.Setenv("VAULT_RPC_TOKEN", "test-token")
	t.Setenv("VAULT_RPC_JWT_SECRET", "")

	store := storage.NewVaultStore(storage.NewMemDB())
	adminKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	admin := adminKey.PubKey().Address()
	accountant := rpcTestAddress(t, crypto.VaultPrefix, 0xAA)
	protocol := rpcTestAddress(t, crypto.VaultPrefix, 0xAB)
	asset := rpcTestAddress(t, crypto.VaultPrefix, 0xEE)

	engine := vault.NewEngine(accountant, protocol)
	engine.SetState(store)
	require.NoError(t, engine.Initialize(admin, asset, 6, nil, 3600))

	return NewServer(engine, store, nil), admin
}

func postRPC(t *testing.T, server *Server, token string, body string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte(body)))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestServeHTTPRejectsMalformedRequests(t *testing.T) {
	server, _ := newTestServer(t)

	rec, resp := postRPC(t, server, "", " ")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	rec, resp = postRPC(t, server, "", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeParseError, resp.Error.Code)

	rec, resp = postRPC(t, server, "", `{"jsonrpc":"1.0","method":"vault_state","id":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	rec, resp = postRPC(t, server, "", `{"jsonrpc":"2.0","method":"vault_unknown","id":1}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	server, admin := newTestServer(t)
	body := fmt.Sprintf(`{"jsonrpc":"2.0","method":"vault_deposit","params":[{"caller":%q,"amount":"100"}],"id":1}`, admin.String())

	rec, resp := postRPC(t, server, "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	rec, resp = postRPC(t, server, "wrong-token", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	rec, resp = postRPC(t, server, "test-token", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
}

func TestDepositAndQueryFlow(t *testing.T) {
	server, admin := newTestServer(t)

	body := fmt.Sprintf(`{"jsonrpc":"2.0","method":"vault_deposit","params":[{"caller":%q,"amount":"250"}],"id":1}`, admin.String())
	rec, resp := postRPC(t, server, "test-token", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var deposit sharesResult
	require.NoError(t, json.Unmarshal(raw, &deposit))
	require.Equal(t, "250", deposit.Shares)

	body = fmt.Sprintf(`{"jsonrpc":"2.0","method":"vault_balanceOf","params":[%q],"id":2}`, admin.String())
	rec, resp = postRPC(t, server, "", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	raw, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	var balance sharesResult
	require.NoError(t, json.Unmarshal(raw, &balance))
	require.Equal(t, "250", balance.Shares)

	rec, resp = postRPC(t, server, "", `{"jsonrpc":"2.0","method":"vault_state","id":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	raw, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	var state stateResult
	require.NoError(t, json.Unmarshal(raw, &state))
	require.Equal(t, "250", state.TotalAssets)
	require.Equal(t, "250", state.TotalIdle)
	require.Equal(t, "0", state.TotalDebt)
	require.Equal(t, "1000000", state.PricePerShare)
	require.False(t, state.Shutdown)
}

func TestInvalidAmountRejected(t *testing.T) {
	server, admin := newTestServer(t)

	for _, amount := range []string{"", "-5", "12.5", "1e9", "0x10"} {
		body := fmt.Sprintf(`{"jsonrpc":"2.0","method":"vault_deposit","params":[{"caller":%q,"amount":%q}],"id":1}`, admin.String(), amount)
		rec, resp := postRPC(t, server, "test-token", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "amount %q", amount)
		require.NotNil(t, resp.Error)
		require.Equal(t, codeInvalidParams, resp.Error.Code)
	}
}

func TestEngineErrorsSurfaceAsServerErrors(t *testing.T) {
	server, admin := newTestServer(t)

	// Zero deposit resolves to zero shares, which the engine refuses.
	body := fmt.Sprintf(`{"jsonrpc":"2.0","method":"vault_deposit","params":[{"caller":%q,"amount":"0"}],"id":1}`, admin.String())
	rec, resp := postRPC(t, server, "test-token", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeServerError, resp.Error.Code)
}

func TestRequestBodyCapEnforced(t *testing.T) {
	server, _ := newTestServer(t)

	large := bytes.Repeat([]byte("a"), maxRequestBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(large))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestJournalEndpoint(t *testing.T) {
	server, admin := newTestServer(t)

	// Without a journal the method reports an empty history.
	rec, resp := postRPC(t, server, "", `{"jsonrpc":"2.0","method":"vault_journal","id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var empty journalResult
	require.NoError(t, json.Unmarshal(raw, &empty))
	require.Empty(t, empty.Records)

	journal, err := audit.OpenJournal(storage.NewMemDB())
	require.NoError(t, err)
	server.SetJournal(journal)
	server.engine.SetEventSink(journal)

	body := fmt.Sprintf(`{"jsonrpc":"2.0","method":"vault_deposit","params":[{"caller":%q,"amount":"250"}],"id":2}`, admin.String())
	rec, resp = postRPC(t, server, "test-token", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	rec, resp = postRPC(t, server, "", `{"jsonrpc":"2.0","method":"vault_journal","params":[{"start":0,"limit":10}],"id":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	raw, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	var result journalResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, uint64(1), result.Total)
	require.Len(t, result.Records, 1)
	require.Equal(t, "vault.deposited", result.Records[0].EventType)
	require.Equal(t, "250", result.Records[0].Attributes["assets"])
}

func TestCheckpointEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec, resp := postRPC(t, server, "", `{"jsonrpc":"2.0","method":"vault_checkpoint","id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var checkpoint checkpointResult
	require.NoError(t, json.Unmarshal(raw, &checkpoint))
	require.Len(t, checkpoint.Digest, 66)
}
