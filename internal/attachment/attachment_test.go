package attachment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefs(t *testing.T) {
	content := `<p>a</p><img data-hash="aabb01"><img data-hash="ccdd02"><img data-hash="aabb01">`

	refs := Refs(content)
	if len(refs) != 2 {
		t.Fatalf("Refs() = %v, want 2 deduplicated refs", refs)
	}
	if refs[0] != "aabb01" || refs[1] != "ccdd02" {
		t.Errorf("Refs() = %v, want [aabb01 ccdd02]", refs)
	}
}

func TestRefs_None(t *testing.T) {
	if refs := Refs("<p>plain text</p>"); len(refs) != 0 {
		t.Errorf("Refs() = %v, want empty", refs)
	}
}

func TestNewRefs(t *testing.T) {
	oldContent := `<img data-hash="aa01">`
	newContent := `<img data-hash="aa01"><img data-hash="bb02"><img data-hash="cc03">`

	fresh := NewRefs(oldContent, newContent)
	if len(fresh) != 2 || fresh[0] != "bb02" || fresh[1] != "cc03" {
		t.Errorf("NewRefs() = %v, want [bb02 cc03]", fresh)
	}
}

func TestHash_Stable(t *testing.T) {
	a := Hash([]byte("payload"))
	b := Hash([]byte("payload"))
	if a != b {
		t.Errorf("Hash() not deterministic: %s vs %s", a, b)
	}
	if a == Hash([]byte("other")) {
		t.Error("Hash() collided for different payloads")
	}
	if len(a) != 16 {
		t.Errorf("Hash() length = %d, want 16 hex chars", len(a))
	}
}

// slowDownloader blocks until its context is cancelled or release is
// closed, recording every request.
type slowDownloader struct {
	mu       sync.Mutex
	requests []string
	release  chan struct{}
}

func (d *slowDownloader) Download(ctx context.Context, hash string) ([]byte, error) {
	d.mu.Lock()
	d.requests = append(d.requests, hash)
	d.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.release:
		return []byte(hash), nil
	}
}

func (d *slowDownloader) Exists(string) (bool, error) { return false, nil }

func (d *slowDownloader) requested() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

func TestDownloadGroup_DeduplicatesRequests(t *testing.T) {
	dl := &slowDownloader{release: make(chan struct{})}
	close(dl.release) // complete immediately
	m := NewManager(dl, nil)

	m.DownloadGroup("n1", []string{"aa", "bb"})
	m.DownloadGroup("n1", []string{"aa", "bb"}) // already requested

	deadline := time.After(time.Second)
	for {
		if m.Loaded("n1", "aa") && m.Loaded("n1", "bb") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("downloads did not complete")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := dl.requested(); len(got) != 2 {
		t.Errorf("download requests = %v, want exactly 2", got)
	}
}

func TestCancelGroup_AbortsAndForgets(t *testing.T) {
	dl := &slowDownloader{release: make(chan struct{})}
	m := NewManager(dl, nil)

	m.DownloadGroup("n1", []string{"aa"})

	// Wait until the download is in flight.
	deadline := time.After(time.Second)
	for len(dl.requested()) == 0 {
		select {
		case <-deadline:
			t.Fatal("download never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.CancelGroup("n1")

	if m.Loaded("n1", "aa") {
		t.Error("Loaded() = true after CancelGroup")
	}

	// After cancellation the hash can be requested again.
	close(dl.release)
	m.DownloadGroup("n1", []string{"aa"})
	deadline = time.After(time.Second)
	for !m.Loaded("n1", "aa") {
		select {
		case <-deadline:
			t.Fatal("re-download did not complete")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	hash, err := fs.Put([]byte("image-bytes"))
	if err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	exists, err := fs.Exists(hash)
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v; want true, nil", exists, err)
	}

	data, err := fs.Download(context.Background(), hash)
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("Download() = %q, want image-bytes", data)
	}

	if _, err := fs.Download(context.Background(), "0000000000000000"); err == nil {
		t.Error("Download() missing hash succeeded, want error")
	}
}

func TestFileStore_CancelledContext(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir())
	hash, _ := fs.Put([]byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fs.Download(ctx, hash); !errors.Is(err, context.Canceled) {
		t.Errorf("Download() = %v, want context.Canceled", err)
	}
}
