package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesRecordedSeries(t *testing.T) {
	ObserveHTTPRequest("/api/v1/posts/{index}", http.MethodGet, http.StatusOK, 20*time.Millisecond)
	ObserveContractCall("ub", "postAt", nil, 5*time.Millisecond)
	ObserveContractCall("etc", "getAuthorAlias", errors.New("boom"), time.Millisecond)
	ObserveArchiveJob("succeeded")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	text := string(body)

	for _, want := range []string{
		`ub_http_requests_total{code="200",method="GET",route="/api/v1/posts/{index}"} 1`,
		`ub_contract_calls_total{contract="ub",method="postAt",outcome="ok"} 1`,
		`ub_contract_calls_total{contract="etc",method="getAuthorAlias",outcome="error"} 1`,
		`ub_archive_jobs_total{outcome="succeeded"} 1`,
		`ub_contract_call_duration_seconds_count{contract="ub",method="postAt"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing series %q in:\n%s", want, text)
		}
	}
}
