package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestIsNoSuchKey(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no such key code", minio.ErrorResponse{Code: "NoSuchKey"}, true},
		{"not found code", minio.ErrorResponse{Code: "NotFound"}, true},
		{"wrapped", fmt.Errorf("remove object: %w", minio.ErrorResponse{Code: "NoSuchKey"}), true},
		{"other minio error", minio.ErrorResponse{Code: "AccessDenied"}, false},
		{"string fallback", errors.New("the specified key does not exist"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsNoSuchKey(tc.err); got != tc.want {
				t.Fatalf("IsNoSuchKey(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
