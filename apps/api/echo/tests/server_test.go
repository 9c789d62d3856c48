package tests

import (
	"errors"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_health(t *testing.T) {
	ta := setup(t)

	req, rec := newRequest(http.MethodGet, "/-/health")
	ta.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	t.Run("failing storage check requests a graceful stop", func(t *testing.T) {
		shutdown := ta.app.ShutdownSignal()

		ta.healthErr = errors.New("connection refused")
		req, rec := newRequest(http.MethodGet, "/-/health")
		ta.app.ServeHTTP(rec, req)

		tt := httpTest{
			wantCode: http.StatusInternalServerError,
			wantData: marchallObj(t, httpErr{Error: http.StatusText(http.StatusInternalServerError)}),
		}
		checkCodeAndData(t, tt, rec)

		select {
		case sig := <-shutdown:
			assert.Equal(t, syscall.SIGTERM, sig)
		default:
			t.Error("expected a shutdown signal after the failed health check")
		}
	})
}
