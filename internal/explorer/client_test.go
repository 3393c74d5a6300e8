package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

const (
	testToken = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
	testBoxID = "0f0e0d0c0b0a09080706050403020100f0e0d0c0b0a090807060504030201000"
)

func newTestServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestBoxByTokenID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tokens/"+testToken, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":%q,"boxId":%q,"emissionAmount":1,"name":"Ghost #1","decimals":0}`, testToken, testBoxID)
	})
	mux.HandleFunc("/api/v1/boxes/"+testBoxID, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"boxId":%q,"value":1000000,"ergoTree":"0008cd","assets":[{"tokenId":%q,"amount":1,"index":0,"name":"Ghost #1"}],
			"additionalRegisters":{"R4":{"serializedValue":"0e0454657374","sigmaType":"Coll[SByte]"},"R5":"0e00"}}`, testBoxID, testToken)
	})
	c := newTestServer(t, mux)

	box, err := c.BoxByTokenID(context.Background(), testToken)
	if err != nil {
		t.Fatalf("BoxByTokenID: %v", err)
	}
	if box.BoxID != testBoxID || box.Value != 1_000_000 {
		t.Errorf("box = %+v", box)
	}
	if box.Registers["R4"] != "0e0454657374" || box.Registers["R5"] != "0e00" {
		t.Errorf("registers = %v", box.Registers)
	}
	if box.TokenAmount(testToken) != 1 {
		t.Errorf("token amount = %d", box.TokenAmount(testToken))
	}
}

func TestErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tokens/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/api/v1/tokens/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	mux.HandleFunc("/api/v1/tokens/bad", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad id", http.StatusBadRequest)
	})
	mux.HandleFunc("/api/v1/tokens/noissuance", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"noissuance"}`))
	})
	c := newTestServer(t, mux)
	ctx := context.Background()

	if _, err := c.Token(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("404 error = %v, want ErrNotFound", err)
	}
	if _, err := c.Token(ctx, "broken"); !errors.Is(err, ErrNetwork) {
		t.Errorf("502 error = %v, want ErrNetwork", err)
	}
	_, err := c.Token(ctx, "bad")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest || errors.Is(err, ErrNetwork) {
		t.Errorf("400 error = %v", err)
	}
	if _, err := c.BoxByTokenID(ctx, "noissuance"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing issuance box error = %v, want ErrNotFound", err)
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Height(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("error = %v, want ErrNetwork", err)
	}
}

func TestCancelledContext(t *testing.T) {
	block := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/networkState", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	c := newTestServer(t, mux)
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Height(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestUnspentByAddressPaginates(t *testing.T) {
	const total = 150
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/boxes/unspent/byAddress/9fAddr", func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var items []map[string]any
		for i := offset; i < total && i < offset+limit; i++ {
			items = append(items, map[string]any{"boxId": fmt.Sprintf("box-%03d", i), "value": 1_000_000})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items, "total": total})
	})
	c := newTestServer(t, mux)

	boxes, err := c.UnspentByAddress(context.Background(), "9fAddr")
	if err != nil {
		t.Fatalf("UnspentByAddress: %v", err)
	}
	if len(boxes) != total {
		t.Fatalf("boxes = %d, want %d", len(boxes), total)
	}
	for i, b := range boxes {
		if b.BoxID != fmt.Sprintf("box-%03d", i) {
			t.Fatalf("box %d = %s, order not preserved", i, b.BoxID)
		}
	}
}

func TestHeightAndSubmit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/networkState", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"height":1234567}`))
	})
	mux.HandleFunc("/api/v1/mempool/transactions/submit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprintf(w, `{"id":%q}`, body["id"])
	})
	c := newTestServer(t, mux)
	ctx := context.Background()

	h, err := c.Height(ctx)
	if err != nil || h != 1234567 {
		t.Errorf("Height() = %d, %v", h, err)
	}
	id, err := c.Submit(ctx, map[string]any{"id": "txid-1"})
	if err != nil || id != "txid-1" {
		t.Errorf("Submit() = %q, %v", id, err)
	}
}
