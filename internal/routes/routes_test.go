package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/passwallet/passwallet/internal/config"
	"github.com/passwallet/passwallet/internal/logging"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	err := Setup(app, Deps{
		Cfg: config.Config{
			AppName:      "passwallet-test",
			AppEnv:       "test",
			RPID:         "localhost",
			RPName:       "PassWallet Demo",
			RPOrigin:     "http://localhost:3000",
			ChallengeTTL: time.Minute,
		},
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

func getJSON(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]any
	if len(raw) > 0 && json.Valid(raw) {
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	return map[string]any{"_raw": string(raw)}
}

func TestPing(t *testing.T) {
	app := newTestApp(t)

	status, body := getJSON(t, app, "/api/ping")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHealthzWithoutStores(t *testing.T) {
	app := newTestApp(t)

	status, body := getJSON(t, app, "/healthz")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	stores, ok := body["status"].(map[string]any)
	if !ok {
		t.Fatalf("unexpected body %v", body)
	}
	if stores["postgres"] != "not configured" || stores["redis"] != "not configured" {
		t.Fatalf("unexpected store status %v", stores)
	}
}

func TestRegisterOptions(t *testing.T) {
	app := newTestApp(t)

	status, body := postJSON(t, app, "/api/auth/register-options", fiber.Map{"username": "alice"})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if body["challenge"] == "" || body["challenge"] == nil {
		t.Fatalf("options must carry a challenge: %v", body)
	}
	rp, ok := body["rp"].(map[string]any)
	if !ok || rp["id"] != "localhost" {
		t.Fatalf("unexpected rp entity: %v", body["rp"])
	}
	user, ok := body["user"].(map[string]any)
	if !ok || user["name"] != "alice" {
		t.Fatalf("unexpected user entity: %v", body["user"])
	}
}

func TestRegisterOptionsRequiresUsername(t *testing.T) {
	app := newTestApp(t)

	status, _ := postJSON(t, app, "/api/auth/register-options", fiber.Map{})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestRegisterOptionsChallengeRotates(t *testing.T) {
	app := newTestApp(t)

	_, first := postJSON(t, app, "/api/auth/register-options", fiber.Map{"username": "alice"})
	_, second := postJSON(t, app, "/api/auth/register-options", fiber.Map{"username": "alice"})
	if first["challenge"] == second["challenge"] {
		t.Fatalf("repeated options requests must mint fresh challenges")
	}
}

func TestVerifyRegistrationGarbageResponse(t *testing.T) {
	app := newTestApp(t)

	if status, _ := postJSON(t, app, "/api/auth/register-options", fiber.Map{"username": "alice"}); status != fiber.StatusOK {
		t.Fatalf("register options failed with %d", status)
	}

	status, body := postJSON(t, app, "/api/auth/verify-registration", fiber.Map{
		"username": "alice",
		"response": fiber.Map{"garbage": true},
	})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", status, body)
	}
	if body["verified"] != false {
		t.Fatalf("expected verified:false, got %v", body)
	}
}

func TestVerifyRegistrationWithoutChallenge(t *testing.T) {
	app := newTestApp(t)

	status, _ := postJSON(t, app, "/api/auth/verify-registration", fiber.Map{
		"username": "ghost",
		"response": fiber.Map{"id": "x"},
	})
	if status != fiber.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", status)
	}
}

func TestAuthOptionsUnknownUser(t *testing.T) {
	app := newTestApp(t)

	status, _ := postJSON(t, app, "/api/auth/auth-options", fiber.Map{"username": "ghost"})
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestUserInfo(t *testing.T) {
	app := newTestApp(t)

	if status, _ := getJSON(t, app, "/api/auth/user/alice"); status != fiber.StatusNotFound {
		t.Fatalf("expected 404 before registration, got %d", status)
	}

	postJSON(t, app, "/api/auth/register-options", fiber.Map{"username": "alice"})

	status, body := getJSON(t, app, "/api/auth/user/alice")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["username"] != "alice" {
		t.Fatalf("unexpected username %v", body["username"])
	}
	if body["hasCredentials"] != false {
		t.Fatalf("options alone must not register a credential: %v", body)
	}
}

func TestSetEthAddress(t *testing.T) {
	app := newTestApp(t)
	address := "0x1111111111111111111111111111111111111111"

	postJSON(t, app, "/api/auth/register-options", fiber.Map{"username": "alice"})

	status, body := postJSON(t, app, "/api/auth/eth-address", fiber.Map{"username": "alice", "ethAddress": address})
	if status != fiber.StatusOK || body["success"] != true {
		t.Fatalf("expected success, got %d: %v", status, body)
	}

	if status, _ := postJSON(t, app, "/api/auth/eth-address", fiber.Map{"username": "alice", "ethAddress": "nope"}); status != fiber.StatusBadRequest {
		t.Fatalf("invalid address: expected 400, got %d", status)
	}
	if status, _ := postJSON(t, app, "/api/auth/eth-address", fiber.Map{"username": "ghost", "ethAddress": address}); status != fiber.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", status)
	}

	_, info := getJSON(t, app, "/api/auth/user/alice")
	if info["ethAddress"] != address {
		t.Fatalf("expected linked address, got %v", info["ethAddress"])
	}
}

func TestCreateAccountSimulated(t *testing.T) {
	app := newTestApp(t)
	ownerAddress := "0x1111111111111111111111111111111111111111"

	status, body := postJSON(t, app, "/api/contracts/create-account", fiber.Map{"ownerAddress": ownerAddress})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	account, _ := body["accountAddress"].(string)
	if len(account) != 42 {
		t.Fatalf("unexpected account address %q", account)
	}

	// Provisioning is idempotent per owner.
	_, again := postJSON(t, app, "/api/contracts/create-account", fiber.Map{"ownerAddress": ownerAddress})
	if again["accountAddress"] != account {
		t.Fatalf("repeated creation diverged: %v vs %v", account, again["accountAddress"])
	}

	status, info := getJSON(t, app, "/api/contracts/account/"+ownerAddress)
	if status != fiber.StatusOK {
		t.Fatalf("get account: expected 200, got %d", status)
	}
	if info["accountAddress"] != account {
		t.Fatalf("lookup mismatch: %v", info)
	}
	if info["balance"] == "" || info["balance"] == nil {
		t.Fatalf("expected a balance, got %v", info)
	}

	status, valid := getJSON(t, app, "/api/contracts/validate/"+account)
	if status != fiber.StatusOK || valid["isValid"] != true {
		t.Fatalf("minted account must validate: %d %v", status, valid)
	}
}

func TestCreateAccountRejectsInvalidOwner(t *testing.T) {
	app := newTestApp(t)

	for _, owner := range []string{"", "0x123", "not-an-address"} {
		status, _ := postJSON(t, app, "/api/contracts/create-account", fiber.Map{"ownerAddress": owner})
		if status != fiber.StatusBadRequest {
			t.Fatalf("owner %q: expected 400, got %d", owner, status)
		}
	}
}

func TestAccountNotFound(t *testing.T) {
	app := newTestApp(t)

	status, _ := getJSON(t, app, "/api/contracts/account/0x9999999999999999999999999999999999999999")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestTransfer(t *testing.T) {
	app := newTestApp(t)
	ownerAddress := "0x1111111111111111111111111111111111111111"

	_, created := postJSON(t, app, "/api/contracts/create-account", fiber.Map{"ownerAddress": ownerAddress})
	account := created["accountAddress"].(string)

	status, body := postJSON(t, app, "/api/contracts/transfer", fiber.Map{
		"accountAddress": account,
		"toAddress":      "0x2222222222222222222222222222222222222222",
		"amount":         "0.1",
	})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	hash, _ := body["transactionHash"].(string)
	if len(hash) != 66 {
		t.Fatalf("unexpected transaction hash %q", hash)
	}

	for _, amount := range []string{"", "0", "-1", "abc"} {
		status, _ := postJSON(t, app, "/api/contracts/transfer", fiber.Map{
			"accountAddress": account,
			"toAddress":      "0x2222222222222222222222222222222222222222",
			"amount":         amount,
		})
		if status != fiber.StatusBadRequest {
			t.Fatalf("amount %q: expected 400, got %d", amount, status)
		}
	}
}

func TestExecute(t *testing.T) {
	app := newTestApp(t)
	ownerAddress := "0x1111111111111111111111111111111111111111"

	_, created := postJSON(t, app, "/api/contracts/create-account", fiber.Map{"ownerAddress": ownerAddress})
	account := created["accountAddress"].(string)

	status, body := postJSON(t, app, "/api/contracts/execute", fiber.Map{
		"accountAddress": account,
		"toAddress":      "0x2222222222222222222222222222222222222222",
		"value":          "0",
		"data":           "0xdeadbeef",
	})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}

	status, _ = postJSON(t, app, "/api/contracts/execute", fiber.Map{
		"accountAddress": account,
		"toAddress":      "0x2222222222222222222222222222222222222222",
		"value":          "0",
		"data":           "zzzz",
	})
	if status != fiber.StatusBadRequest {
		t.Fatalf("invalid call data: expected 400, got %d", status)
	}
}

const (
	testAliceKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testBobKey   = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

func TestMessagingFlow(t *testing.T) {
	app := newTestApp(t)

	status, alice := postJSON(t, app, "/api/messaging/init", fiber.Map{"privateKey": testAliceKey})
	if status != fiber.StatusOK || alice["success"] != true {
		t.Fatalf("init: %d %v", status, alice)
	}
	_, bob := postJSON(t, app, "/api/messaging/init", fiber.Map{"privateKey": testBobKey})

	aliceAddr := alice["address"].(string)
	bobAddr := bob["address"].(string)

	status, conv := postJSON(t, app, "/api/messaging/conversation/new", fiber.Map{
		"privateKey":  testAliceKey,
		"peerAddress": bobAddr,
	})
	if status != fiber.StatusOK {
		t.Fatalf("new conversation: %d %v", status, conv)
	}
	conversation := conv["conversation"].(map[string]any)
	if conversation["warning"] != nil {
		t.Fatalf("reachable peer must not warn: %v", conversation)
	}

	status, sent := postJSON(t, app, "/api/messaging/message/send", fiber.Map{
		"privateKey":  testAliceKey,
		"peerAddress": bobAddr,
		"content":     "hello bob",
	})
	if status != fiber.StatusOK {
		t.Fatalf("send: %d %v", status, sent)
	}

	status, thread := postJSON(t, app, "/api/messaging/messages", fiber.Map{
		"privateKey":  testBobKey,
		"peerAddress": aliceAddr,
	})
	if status != fiber.StatusOK {
		t.Fatalf("messages: %d %v", status, thread)
	}
	messages := thread["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	first := messages[0].(map[string]any)
	if first["content"] != "hello bob" || first["senderAddress"] != aliceAddr {
		t.Fatalf("unexpected message %v", first)
	}
}

func TestMessagingUnreachablePeerWarning(t *testing.T) {
	app := newTestApp(t)

	postJSON(t, app, "/api/messaging/init", fiber.Map{"privateKey": testAliceKey})

	status, body := postJSON(t, app, "/api/messaging/conversation/new", fiber.Map{
		"privateKey":  testAliceKey,
		"peerAddress": "0x00000000000000000000000000000000000000aa",
	})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 for unreachable peer, got %d: %v", status, body)
	}
	conversation := body["conversation"].(map[string]any)
	warning, _ := conversation["warning"].(string)
	if warning == "" {
		t.Fatalf("expected a warning, got %v", conversation)
	}
}

func TestMessagingValidation(t *testing.T) {
	app := newTestApp(t)

	if status, _ := postJSON(t, app, "/api/messaging/init", fiber.Map{}); status != fiber.StatusBadRequest {
		t.Fatalf("missing key: expected 400, got %d", status)
	}
	if status, _ := postJSON(t, app, "/api/messaging/init", fiber.Map{"privateKey": "nope"}); status != fiber.StatusBadRequest {
		t.Fatalf("invalid key: expected 400, got %d", status)
	}
	if status, _ := postJSON(t, app, "/api/messaging/message/send", fiber.Map{
		"privateKey":  testAliceKey,
		"peerAddress": "0x00000000000000000000000000000000000000aa",
	}); status != fiber.StatusBadRequest {
		t.Fatalf("empty content: expected 400, got %d", status)
	}
	if status, _ := postJSON(t, app, "/api/messaging/conversation/new", fiber.Map{
		"privateKey":  testAliceKey,
		"peerAddress": "not-an-address",
	}); status != fiber.StatusBadRequest {
		t.Fatalf("invalid peer: expected 400, got %d", status)
	}
}
