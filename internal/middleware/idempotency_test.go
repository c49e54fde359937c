package middleware

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/passwallet/passwallet/internal/logging"
)

func newIdempotencyApp(t *testing.T) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	app := fiber.New()
	app.Use(Idempotency(client, time.Minute, logging.Discard()))

	calls := 0
	app.Post("/action", func(c *fiber.Ctx) error {
		calls++
		return c.JSON(fiber.Map{"calls": calls})
	})
	return app, mr
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	app, _ := newIdempotencyApp(t)

	for want := 1; want <= 2; want++ {
		req := httptest.NewRequest(fiber.MethodPost, "/action", nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != fmt.Sprintf(`{"calls":%d}`, want) {
			t.Fatalf("request %d: unexpected body %s", want, body)
		}
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	app, _ := newIdempotencyApp(t)

	first := httptest.NewRequest(fiber.MethodPost, "/action", nil)
	first.Header.Set("Idempotency-Key", "key-1")
	resp1, err := app.Test(first)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	body1, _ := io.ReadAll(resp1.Body)
	resp1.Body.Close()

	second := httptest.NewRequest(fiber.MethodPost, "/action", nil)
	second.Header.Set("Idempotency-Key", "key-1")
	resp2, err := app.Test(second)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	body2, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()

	if string(body1) != string(body2) {
		t.Fatalf("replay diverged: %s vs %s", body1, body2)
	}
	if resp2.StatusCode != resp1.StatusCode {
		t.Fatalf("replay status %d, want %d", resp2.StatusCode, resp1.StatusCode)
	}
}

func TestIdempotencyDistinctKeys(t *testing.T) {
	app, _ := newIdempotencyApp(t)

	bodies := map[string]bool{}
	for _, key := range []string{"key-a", "key-b"} {
		req := httptest.NewRequest(fiber.MethodPost, "/action", nil)
		req.Header.Set("Idempotency-Key", key)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		bodies[string(body)] = true
	}
	if len(bodies) != 2 {
		t.Fatalf("distinct keys must not share responses: %v", bodies)
	}
}

func TestIdempotencyInProgressConflict(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	app := fiber.New()
	app.Use(Idempotency(client, time.Minute, logging.Discard()))
	app.Post("/action", func(c *fiber.Ctx) error { return c.SendString("ok") })

	// Simulate a concurrent request holding the reservation.
	mr.Set("idempotency:v1:busy", "__in_progress__")

	req := httptest.NewRequest(fiber.MethodPost, "/action", nil)
	req.Header.Set("Idempotency-Key", "busy")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestIdempotencySkipsSafeMethods(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	app := fiber.New()
	app.Use(Idempotency(client, time.Minute, logging.Discard()))

	calls := 0
	app.Get("/read", func(c *fiber.Ctx) error {
		calls++
		return c.SendString("ok")
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(fiber.MethodGet, "/read", nil)
		req.Header.Set("Idempotency-Key", "ignored")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
	}
	if calls != 2 {
		t.Fatalf("GET requests must not be deduplicated, handler ran %d times", calls)
	}
}
