package pagination

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("page size = %d, want %d", params.PageSize, DefaultPageSize)
	}
	if params.PageToken != "" || params.Cursor.StartAfter != "" {
		t.Fatalf("expected empty token and cursor, got %#v", params)
	}
	if params.Status != "" {
		t.Fatalf("expected no status filter, got %q", params.Status)
	}
}

func TestParsePageSize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		opts    Options
		want    int
		wantErr bool
	}{
		{name: "explicit", raw: "10", want: 10},
		{name: "clamped to max", raw: "500", want: DefaultMaxPageSize},
		{name: "custom max", raw: "80", opts: Options{MaxPageSize: 40}, want: 40},
		{name: "custom default", raw: "", opts: Options{DefaultPageSize: 5}, want: 5},
		{name: "not an integer", raw: "ten", wantErr: true},
		{name: "zero", raw: "0", wantErr: true},
		{name: "negative", raw: "-3", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			values := url.Values{}
			if tc.raw != "" {
				values.Set("pageSize", tc.raw)
			}
			params, err := Parse(values, tc.opts)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidPageSize) {
					t.Fatalf("expected ErrInvalidPageSize, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if params.PageSize != tc.want {
				t.Fatalf("page size = %d, want %d", params.PageSize, tc.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	opts := Options{StatusValues: []string{"active", "inactive"}}

	params, err := Parse(url.Values{"status": []string{"Active"}}, opts)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Status != "active" {
		t.Fatalf("status = %q, want %q", params.Status, "active")
	}

	if _, err := Parse(url.Values{"status": []string{"archived"}}, opts); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := Parse(url.Values{"status": []string{"active"}}, Options{}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus when filtering unsupported, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: "SPRING25"})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	params, err := Parse(url.Values{"pageToken": []string{token}}, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.PageToken != token {
		t.Fatalf("page token = %q, want %q", params.PageToken, token)
	}
	if params.Cursor.StartAfter != "SPRING25" {
		t.Fatalf("cursor = %q, want %q", params.Cursor.StartAfter, "SPRING25")
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for empty cursor, got %q", token)
	}
}

func TestDecodeTokenInvalid(t *testing.T) {
	if _, err := DecodeToken("%%not-base64%%"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
	if _, err := DecodeToken("bm90LWpzb24"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken for non-json payload, got %v", err)
	}
}

func TestMustAppliesDefault(t *testing.T) {
	params := Must(Params{})
	if params.PageSize != DefaultPageSize {
		t.Fatalf("page size = %d, want %d", params.PageSize, DefaultPageSize)
	}
}
