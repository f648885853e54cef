package storage

import (
	"context"
	"net/url"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw       string
		bucket    string
		key       string
		shouldErr bool
	}{
		{"s3://runtimes/linux/dotnet-8.0.5.tar.gz", "runtimes", "linux/dotnet-8.0.5.tar.gz", false},
		{"s3://runtimes/", "", "", true},
		{"s3:///key", "", "", true},
		{"https://runtimes/key", "", "", true},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatalf("failed to parse %s: %v", tt.raw, err)
		}
		bucket, key, err := ParseURL(u)
		if tt.shouldErr {
			if err == nil {
				t.Errorf("ParseURL(%s): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseURL(%s): %v", tt.raw, err)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseURL(%s) = %s, %s", tt.raw, bucket, key)
		}
	}
}

func TestServer(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		opts Options
		want string
	}{
		{Options{Region: "eu-west-1"}, "runtimes.s3.eu-west-1.amazonaws.com:443"},
		{Options{Region: "us-east-1", Endpoint: "http://127.0.0.1:9000"}, "127.0.0.1:9000"},
		{Options{Region: "auto", Endpoint: "https://mirror.example.org"}, "mirror.example.org:443"},
		{Options{Region: "auto", Endpoint: "http://mirror.example.org"}, "mirror.example.org:80"},
	}

	for _, tt := range tests {
		c, err := NewClient(ctx, tt.opts)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if got := c.Server("runtimes"); got != tt.want {
			t.Errorf("Server() with %+v = %s, want %s", tt.opts, got, tt.want)
		}
	}
}
