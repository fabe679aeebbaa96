package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rest Suite")
}

var _ = Describe("HealthHandler", func() {
	It("reports healthy when every component answers", func() {
		h := NewHealthHandler(map[string]CheckFunc{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return nil },
		})
		rec := httptest.NewRecorder()

		h.healthCheckHandler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		var resp HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Status).To(Equal(HealthHealthy))
		Expect(resp.Components).To(HaveLen(2))
	})

	It("returns 503 naming the failing component", func() {
		h := NewHealthHandler(map[string]CheckFunc{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rec := httptest.NewRecorder()

		h.healthCheckHandler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		var resp HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Status).To(Equal(HealthUnhealthy))
		Expect(resp.Components["redis"].Status).To(Equal(HealthUnhealthy))
		Expect(resp.Components["redis"].Message).To(Equal("connection refused"))
		Expect(resp.Components["database"].Status).To(Equal(HealthHealthy))
	})

	It("answers ping", func() {
		rec := httptest.NewRecorder()
		NewHealthHandler(nil).pingHandler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("OK"))
	})
})
