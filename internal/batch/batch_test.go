package batch

import (
	"testing"

	"github.com/spf13/afero"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestScanCollectsBatchURLs(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/prd_apm_batch1/urls.txt", "https://a.example/metrics\nhttps://b.example/metrics\n")
	writeFile(t, fs, "/data/prd_apm_batch2/urls.txt", "https://c.example/metrics\n")
	// Directory without the prefix is skipped
	writeFile(t, fs, "/data/scratch/urls.txt", "https://ignored.example/metrics\n")

	s := &Scanner{Fs: fs, Root: "/data", Prefix: "prd_apm_batch"}
	urls, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := []string{
		"https://a.example/metrics",
		"https://b.example/metrics",
		"https://c.example/metrics",
	}
	if len(urls) != len(want) {
		t.Fatalf("expected %d urls, got %d: %v", len(want), len(urls), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestScanSkipsBackupFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/prd_apm_batch1/urls.txt", "https://live.example/metrics\n")
	writeFile(t, fs, "/data/prd_apm_batch1/urls.txt.bak", "https://stale.example/metrics\n")
	writeFile(t, fs, "/data/prd_apm_batch1/urls.txt.20250623", "https://dated.example/metrics\n")
	writeFile(t, fs, "/data/prd_apm_batch1/urls.txt~", "https://tilde.example/metrics\n")

	s := &Scanner{Fs: fs, Root: "/data", Prefix: "prd_apm_batch"}
	urls, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://live.example/metrics" {
		t.Fatalf("expected only the live url, got %v", urls)
	}
}

func TestScanDeduplicatesAndIgnoresComments(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/prd_apm_batch1/a.txt", "# batch one\nhttps://a.example/metrics\n\nhttps://b.example/metrics\n")
	writeFile(t, fs, "/data/prd_apm_batch2/b.txt", "https://a.example/metrics\n")

	s := &Scanner{Fs: fs, Root: "/data", Prefix: "prd_apm_batch"}
	urls, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls after dedup, got %v", urls)
	}
}

func TestScanMissingRoot(t *testing.T) {
	s := &Scanner{Fs: afero.NewMemMapFs(), Root: "/missing", Prefix: "prd_apm_batch"}
	if _, err := s.Scan(); err == nil {
		t.Fatal("expected error for missing batch root")
	}
}

func TestIsBackupFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"urls.txt", false},
		{"urls.txt.bak", true},
		{"urls.txt.orig", true},
		{"urls.txt.OLD", true},
		{"urls.txt.tmp", true},
		{"urls.txt.20250623", true},
		{"urls.txt~", true},
		{"#urls.txt#", true},
		{"urls.2025.txt", false},
	}
	for _, tt := range tests {
		if got := IsBackupFile(tt.name); got != tt.want {
			t.Errorf("IsBackupFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
