package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name    string
		bucket  string
		wantErr bool
	}{
		{name: "valid name", bucket: "congressional-records"},
		{name: "valid with dots", bucket: "my.bucket.name"},
		{name: "minimum length", bucket: "abc"},
		{name: "too short", bucket: "ab", wantErr: true},
		{name: "too long", bucket: strings.Repeat("a", 64), wantErr: true},
		{name: "uppercase", bucket: "MyBucket", wantErr: true},
		{name: "underscore", bucket: "my_bucket", wantErr: true},
		{name: "leading hyphen", bucket: "-bucket", wantErr: true},
		{name: "trailing dot", bucket: "bucket.", wantErr: true},
		{name: "adjacent periods", bucket: "my..bucket", wantErr: true},
		{name: "period hyphen", bucket: "my.-bucket", wantErr: true},
		{name: "ip address", bucket: "192.168.1.1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucketName(tt.bucket)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateObjectKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "valid key", key: "records/2025-01-03_c119_v171_i1_Senate.html"},
		{name: "valid flat key", key: "all_issues.json"},
		{name: "empty", key: "", wantErr: true},
		{name: "too long", key: strings.Repeat("a", 1025), wantErr: true},
		{name: "absolute path", key: "/etc/passwd", wantErr: true},
		{name: "dot dot segment", key: "records/../secrets", wantErr: true},
		{name: "dot segment", key: "records/./file", wantErr: true},
		{name: "control character", key: "records/file\x00name", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
