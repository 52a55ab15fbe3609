package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()
	m.DocumentWrite("users", "create")
	m.DocumentWrite("users", "create")
	m.AuthAttempt("login", false)
	m.SubscriberDelta("expenses", 1)
	m.SubscriberDelta("expenses", 1)
	m.SubscriberDelta("expenses", -1)

	out := scrape(t, m)
	for _, want := range []string{
		`gophspend_document_writes_total{collection="users",op="create"} 2`,
		`gophspend_auth_attempts_total{action="login",result="fail"} 1`,
		`gophspend_subscribers{collection="expenses"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.DocumentWrite("users", "delete")
	m.AuthAttempt("register", true)
	m.SubscriberDelta("users", 1)
}
