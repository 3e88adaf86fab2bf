package vault

import (
	"errors"
	"testing"
)

// memMeta is an in-memory MetaStore.
type memMeta map[string]string

func (m memMeta) GetMeta(key string) (string, error) { return m[key], nil }
func (m memMeta) SetMeta(key, value string) error    { m[key] = value; return nil }

func TestCreateSealOpen(t *testing.T) {
	v := New(memMeta{})

	if err := v.Create("hunter2"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if !v.IsOpen() {
		t.Fatal("vault closed after Create")
	}

	sealed, err := v.Seal("<p>secret</p>")
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	if sealed == "<p>secret</p>" {
		t.Fatal("Seal() returned plaintext")
	}

	plain, err := v.Open(sealed)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if plain != "<p>secret</p>" {
		t.Errorf("Open() = %q, want original plaintext", plain)
	}
}

func TestLockedOperations(t *testing.T) {
	meta := memMeta{}
	v := New(meta)
	if err := v.Create("pw"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	sealed, _ := v.Seal("data")

	v.Lock()

	if v.IsOpen() {
		t.Error("IsOpen() = true after Lock")
	}
	if _, err := v.Seal("x"); !errors.Is(err, ErrLocked) {
		t.Errorf("Seal() locked = %v, want ErrLocked", err)
	}
	if _, err := v.Open(sealed); !errors.Is(err, ErrLocked) {
		t.Errorf("Open() locked = %v, want ErrLocked", err)
	}
}

func TestUnlock(t *testing.T) {
	meta := memMeta{}
	v := New(meta)
	if err := v.Create("pw"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	sealed, _ := v.Seal("data")
	v.Lock()

	// A fresh vault instance over the same meta store can unlock.
	v2 := New(meta)
	if err := v2.Unlock("pw"); err != nil {
		t.Fatalf("Unlock() failed: %v", err)
	}
	plain, err := v2.Open(sealed)
	if err != nil {
		t.Fatalf("Open() after Unlock failed: %v", err)
	}
	if plain != "data" {
		t.Errorf("Open() = %q, want data", plain)
	}
}

func TestUnlock_WrongPassword(t *testing.T) {
	meta := memMeta{}
	v := New(meta)
	if err := v.Create("right"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	v.Lock()

	if err := v.Unlock("wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Unlock() wrong password = %v, want ErrWrongPassword", err)
	}
	if v.IsOpen() {
		t.Error("vault open after failed Unlock")
	}
}

func TestUnlock_NotCreated(t *testing.T) {
	v := New(memMeta{})
	if err := v.Unlock("pw"); !errors.Is(err, ErrNotCreated) {
		t.Errorf("Unlock() = %v, want ErrNotCreated", err)
	}
}

func TestExists(t *testing.T) {
	meta := memMeta{}
	v := New(meta)

	exists, err := v.Exists()
	if err != nil || exists {
		t.Errorf("Exists() = %v, %v; want false, nil", exists, err)
	}

	if err := v.Create("pw"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	exists, _ = v.Exists()
	if !exists {
		t.Error("Exists() = false after Create")
	}
}

func TestOpen_Tampered(t *testing.T) {
	v := New(memMeta{})
	if err := v.Create("pw"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if _, err := v.Open("not-even-close"); err == nil {
		t.Error("Open() tampered input succeeded, want error")
	}
}
