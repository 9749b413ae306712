package store

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
)

// OpenDB opens and pings the store database. An explicit URL wins; otherwise
// SCHEMASYNC_DATABASE_URL, then DATABASE_URL, then a .env file found by
// walking up from the working directory.
func OpenDB(url string) (*sql.DB, error) {
	if url == "" {
		var err error
		url, err = resolveDatabaseURL()
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func resolveDatabaseURL() (string, error) {
	for _, key := range []string{"SCHEMASYNC_DATABASE_URL", "DATABASE_URL"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, nil
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for dir := wd; ; dir = filepath.Dir(dir) {
		if v, ok := databaseURLFromEnvFile(filepath.Join(dir, ".env")); ok {
			return v, nil
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}

	return "", errors.New("database URL not found in environment or .env")
}

// databaseURLFromEnvFile scans a dotenv-style file for DATABASE_URL
func databaseURLFromEnvFile(path string) (string, bool) {
	file, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found || strings.TrimSpace(key) != "DATABASE_URL" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if value != "" {
			return value, true
		}
	}
	return "", false
}
