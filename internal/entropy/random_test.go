package entropy

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCryptoSeedPositive(t *testing.T) {
	seen := map[int64]bool{}
	for range 50 {
		s := CryptoSeed()
		if s <= 0 {
			t.Fatalf("seed = %d, want > 0", s)
		}
		seen[s] = true
	}
	if len(seen) < 45 {
		t.Errorf("only %d distinct seeds out of 50", len(seen))
	}
}

func TestClientSeed(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     int64 // 0 = any crypto fallback
	}{
		{"ok", `{"result":{"random":{"data":[3,5]}}}`, 3<<31 | 5},
		{"api error", `{"error":{"message":"bad key"}}`, 0},
		{"short", `{"result":{"random":{"data":[7]}}}`, 0},
		{"garbage", `not json`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.response))
			}))
			defer ts.Close()

			c := NewClient("key")
			c.url = ts.URL
			got := c.Seed(t.Context())
			if tt.want != 0 && got != tt.want {
				t.Errorf("seed = %d, want %d", got, tt.want)
			}
			if got <= 0 {
				t.Errorf("seed = %d, want > 0", got)
			}
		})
	}
}

func TestNilClientUsesCrypto(t *testing.T) {
	if NewClient("") != nil {
		t.Fatal("empty key should give a nil client")
	}
	var c *Client
	if c.Seed(t.Context()) <= 0 {
		t.Error("nil client seed not positive")
	}
}
