package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOutcome(t *testing.T) {
	if Outcome(nil) != "ok" || Outcome(errors.New("x")) != "error" {
		t.Error("unexpected outcome labels")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	FeeRebuilds.Inc()
	AirdropSkipped.WithLabelValues("unknown_recipient").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{"klingdrop_airdrop_fee_rebuilds_total", `klingdrop_airdrop_skipped_outputs_total{reason="unknown_recipient"}`} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
