package feed

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeUnknown},
		{"plain", errors.New("x"), CodeUnknown},
		{"direct", &Error{Code: CodeParse}, CodeParse},
		{"wrapped", fmt.Errorf("run: %w", &Error{Code: CodeTimeout}), CodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCodeDescribeDistinct(t *testing.T) {
	seen := make(map[string]Code)
	for _, c := range Codes {
		d := c.Describe()
		if d == "" {
			t.Errorf("%s has no description", c)
		}
		if prev, ok := seen[d]; ok {
			t.Errorf("%s and %s share description %q", c, prev, d)
		}
		seen[d] = c
	}
}

func TestErrorString(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Code: CodeNetwork, Message: "request failed", Err: cause}, "NETWORK: request failed: dial tcp: refused"},
		{&Error{Code: CodeNetwork, Err: cause}, "NETWORK: dial tcp: refused"},
		{&Error{Code: CodeHTTP, Message: "upstream status 503"}, "HTTP: upstream status 503"},
		{&Error{Code: CodeUnknown}, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
	if !errors.Is(&Error{Code: CodeNetwork, Err: cause}, cause) {
		t.Error("Error should unwrap to its cause")
	}
}

func TestFailureMessage(t *testing.T) {
	res := Failure("nhk", &Error{Code: CodeParse, Message: "parse feed", Err: errors.New("XML syntax error on line 1")})
	if res.Message != "parse feed: XML syntax error on line 1" {
		t.Errorf("message = %q", res.Message)
	}

	res = Failure("nhk", errors.New("surprise"))
	if res.Code != CodeUnknown || res.Message != "surprise" {
		t.Errorf("unclassified failure = %+v", res)
	}
}
