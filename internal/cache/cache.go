package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/solvaholic/rally/internal/normalize"
)

// CacheDir returns the root cache directory path
func CacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".rally"), nil
}

// RawDir returns the directory holding raw responses of one kind
// (activities, chats, messages, ...)
func RawDir(kind string) (string, error) {
	cacheDir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "raw", sanitize(kind)), nil
}

// RawEntry is a cached response body
type RawEntry struct {
	Kind      string
	Key       string
	Body      []byte
	FetchedAt time.Time
}

// SaveRaw stores a response body exactly as received under raw/<kind>/<key>.json
func SaveRaw(kind, key string, body []byte) error {
	if kind == "" || key == "" {
		return fmt.Errorf("cache kind and key are required")
	}

	dir, err := RawDir(kind)
	if err != nil {
		return err
	}

	// Create directory with restrictive permissions
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	return writeAtomic(filepath.Join(dir, sanitize(key)+".json"), body)
}

// LoadRaw retrieves a cached response body.
// Returns nil if no cache exists or it was written before since (cache miss)
func LoadRaw(kind, key string, since time.Time) (*RawEntry, error) {
	dir, err := RawDir(kind)
	if err != nil {
		return nil, err
	}
	filePath := filepath.Join(dir, sanitize(key)+".json")

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat cache file: %w", err)
	}

	if !since.IsZero() && info.ModTime().Before(since) {
		return nil, nil // Cache too old
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	return &RawEntry{
		Kind:      kind,
		Key:       key,
		Body:      data,
		FetchedAt: info.ModTime(),
	}, nil
}

// ListKeys returns the cached keys of one kind, sorted
func ListKeys(kind string) ([]string, error) {
	dir, err := RawDir(kind)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// DiscoverKinds returns every kind that has a raw cache directory
func DiscoverKinds() ([]string, error) {
	cacheDir, err := CacheDir()
	if err != nil {
		return nil, err
	}

	rawDir := filepath.Join(cacheDir, "raw")
	if _, err := os.Stat(rawDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw directory: %w", err)
	}

	kinds := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			kinds = append(kinds, entry.Name())
		}
	}

	return kinds, nil
}

// Session represents the authenticated user
type Session struct {
	UserID   string    `json:"user_id"`
	Name     *string   `json:"name,omitempty"`
	Email    *string   `json:"email,omitempty"`
	BaseURL  string    `json:"base_url"`
	CachedAt time.Time `json:"cached_at"`
}

// SaveSession saves the authenticated user for a backend
func SaveSession(baseURL string, user *normalize.Participant) error {
	cacheDir, err := CacheDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	session := Session{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		BaseURL:  baseURL,
		CachedAt: time.Now(),
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return writeAtomic(filepath.Join(cacheDir, "session.json"), data)
}

// GetSession retrieves the authenticated user
func GetSession() (*Session, error) {
	cacheDir, err := CacheDir()
	if err != nil {
		return nil, err
	}

	filePath := filepath.Join(cacheDir, "session.json")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no cached session, run 'rally fetch me' first")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	return &session, nil
}

// writeAtomic writes to a temp file first, then renames it into place
func writeAtomic(filePath string, data []byte) error {
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath) // Clean up temp file
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	return nil
}

// sanitize turns a key into a single safe path element
func sanitize(key string) string {
	key = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, key)
	if key == "." || key == ".." || key == "" {
		return "_"
	}
	return key
}
