package objectstore

import (
	"context"
	"strings"
	"testing"
)

func TestDisabledAccountRejectsUpload(t *testing.T) {
	s, err := NewS3Storage(context.Background(), Account{RepoName: "r0"})
	if err != nil {
		t.Fatalf("new s3 storage: %v", err)
	}
	if _, err := s.Upload(context.Background(), "k", strings.NewReader("x"), 1, "video/mp4"); err == nil {
		t.Fatalf("expected upload against an unconfigured account to fail")
	}
	if err := s.Healthy(context.Background()); err != nil {
		t.Fatalf("disabled account should report healthy (nothing to check), got %v", err)
	}
}

func TestParseAccountsSplitsEndpoint(t *testing.T) {
	accs := ParseAccounts([]string{"bucket-a@https://r2.example.com", "bucket-b"}, []string{"ak1", "ak2"}, []string{"sk1", "sk2"})
	if len(accs) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accs))
	}
	if accs[0].Bucket != "bucket-a" || accs[0].Endpoint != "https://r2.example.com" {
		t.Fatalf("unexpected account 0: %+v", accs[0])
	}
	if accs[1].Bucket != "bucket-b" || accs[1].Endpoint != "" {
		t.Fatalf("unexpected account 1: %+v", accs[1])
	}
}
