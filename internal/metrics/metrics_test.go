package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"celulas-backend/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newApp(m *Metrics) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: apperr.Handler(zap.NewNop())})
	app.Use(m.Middleware())
	app.Get("/metrics", m.Handler())
	app.Get("/api/cells/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "missing" {
			return apperr.NotFound("Célula não encontrada")
		}
		return c.SendString("ok")
	})
	return app
}

func TestMiddleware_CountsByRoute(t *testing.T) {
	m := New()
	app := newApp(m)

	for _, id := range []string{"a", "b", "missing"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/cells/"+id, nil))
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/cells/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/cells/:id", "404")))
}

func TestPrayerLogged(t *testing.T) {
	m := New()
	m.PrayerLogged(false)
	m.PrayerLogged(true)
	m.PrayerLogged(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.prayers.WithLabelValues("logged")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.prayers.WithLabelValues("already_logged")))
}

func TestHandler_ExposesRegistry(t *testing.T) {
	m := New()
	m.PrayerLogged(false)
	app := newApp(m)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `celulas_prayer_logs_total{outcome="logged"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
