package cookiestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
)

const cookieKey = "COOKIE"

// EnvFileStore keeps the credential as a COOKIE="..." line in a dotenv file,
// leaving every other line untouched
type EnvFileStore struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

var _ deps.CookieStore = (*EnvFileStore)(nil)

// NewEnvFileStore creates a store backed by the file at path
func NewEnvFileStore(path string, logger zerolog.Logger) *EnvFileStore {
	return &EnvFileStore{
		path:   path,
		logger: logger.With().Str("component", "env_cookie_store").Logger(),
	}
}

// Path returns the backing file path
func (s *EnvFileStore) Path() string {
	return s.path
}

// Save replaces the first COOKIE= line (dropping any later ones) or appends
// one. The file is rewritten atomically.
func (s *EnvFileStore) Save(ctx context.Context, credential string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(credential, "\r\n") {
		return fmt.Errorf("cookie must be a single line")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	content, mode, err := s.read()
	if err != nil {
		return err
	}

	updated := replaceCookieLine(content, cookieKey+"="+quote(credential))
	if err := writeAtomic(s.path, updated, mode); err != nil {
		return err
	}

	s.logger.Info().Str("path", s.path).Int("length", len(credential)).Msg("cookie saved")
	return nil
}

// Load returns the stored credential. A missing file or missing key is not an error.
func (s *EnvFileStore) Load(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	content, _, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return "", false, err
	}

	value := ""
	if vars, err := godotenv.Parse(bytes.NewReader(content)); err == nil {
		value = vars[cookieKey]
	} else {
		// Other lines may not be valid dotenv syntax
		s.logger.Debug().Err(err).Str("path", s.path).Msg("env file not parseable, scanning lines")
		value = scanCookieLine(content)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

func (s *EnvFileStore) read() ([]byte, fs.FileMode, error) {
	content, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0o600, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	mode := fs.FileMode(0o600)
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}
	return content, mode, nil
}

// replaceCookieLine swaps the first COOKIE= line for line, drops duplicates
// and appends line if none was found
func replaceCookieLine(content []byte, line string) []byte {
	if len(content) == 0 {
		return []byte(line + "\n")
	}

	lines := strings.SplitAfter(string(content), "\n")
	out := make([]string, 0, len(lines)+1)
	replaced := false

	for _, l := range lines {
		if !isCookieLine(l) {
			out = append(out, l)
			continue
		}
		if replaced {
			continue
		}
		replaced = true

		ending := ""
		switch {
		case strings.HasSuffix(l, "\r\n"):
			ending = "\r\n"
		case strings.HasSuffix(l, "\n"):
			ending = "\n"
		}
		out = append(out, line+ending)
	}

	if !replaced {
		last := out[len(out)-1]
		if !strings.HasSuffix(last, "\n") {
			out[len(out)-1] = last + "\n"
		}
		out = append(out, line+"\n")
	}

	return []byte(strings.Join(out, ""))
}

func isCookieLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	trimmed = strings.TrimPrefix(trimmed, "export ")
	return strings.HasPrefix(trimmed, cookieKey+"=")
}

// scanCookieLine extracts the COOKIE value without a full dotenv parse
func scanCookieLine(content []byte) string {
	for _, line := range strings.Split(string(content), "\n") {
		if !isCookieLine(line) {
			continue
		}
		_, value, _ := strings.Cut(strings.TrimRight(line, "\r"), "=")
		return unquote(strings.TrimSpace(value))
	}
	return ""
}

// quote renders value as a dotenv value that godotenv reads back unchanged.
// Values with double quotes go in single quotes, which godotenv keeps literal.
func quote(value string) string {
	if strings.Contains(value, `"`) && !strings.Contains(value, `'`) {
		return "'" + value + "'"
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return `"` + r.Replace(value) + `"`
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			value = value[1 : len(value)-1]
			if first == '"' {
				value = strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\$`, `$`).Replace(value)
			}
			return value
		}
	}
	return strings.Trim(value, `"'`)
}

// writeAtomic writes data to a temp file in the same directory and renames it over path
func writeAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
