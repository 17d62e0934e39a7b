package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/portalcms/portal-backend/common"
)

// ErrNotFound is returned when a staged token or stored file does not exist.
var ErrNotFound = errors.New("file not found")

// File is a staged upload that has been read back into memory.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Store keeps durable media files under a root directory and staged uploads
// under root/tmp. Durable files get uuid names so client filenames never
// collide; staged files are keyed by the client filename, which acts as the
// token a later post write refers to.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("media: create store: %w", err)
	}
	return &Store{root: root}, nil
}

// Save writes content as a durable file named by a fresh uuid, keeping the
// original filename's extension. It returns the stored name.
func (s *Store) Save(filename string, r io.Reader) (string, error) {
	ext := filepath.Ext(filename)
	name := uuid.New().String() + ext

	f, err := os.Create(filepath.Join(s.root, name))
	if err != nil {
		return "", fmt.Errorf("media: save %s: %w", name, err)
	}
	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("media: save %s: %w", name, err)
	}
	if err = f.Close(); err != nil {
		return "", fmt.Errorf("media: save %s: %w", name, err)
	}
	return name, nil
}

// Stage writes content into the temp namespace keyed by the client filename
// and returns that filename as the token. Identical filenames overwrite each
// other; callers wanting isolation should pick unique names.
func (s *Store) Stage(filename string, r io.Reader) (string, error) {
	token := filepath.Base(filename)
	if token == "." || token == ".." || token == string(filepath.Separator) {
		return "", fmt.Errorf("media: invalid filename %q", filename)
	}

	f, err := os.Create(filepath.Join(s.root, "tmp", token))
	if err != nil {
		return "", fmt.Errorf("media: stage %s: %w", token, err)
	}
	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("media: stage %s: %w", token, err)
	}
	if err = f.Close(); err != nil {
		return "", fmt.Errorf("media: stage %s: %w", token, err)
	}
	return token, nil
}

// Resolve consumes a staged token: it reads the temp file fully, removes it,
// and returns the content with a type inferred from the extension. A token is
// single-use; resolving one that was never staged or was already consumed
// returns ErrNotFound. The rename below is the atomic claim, so of any number
// of concurrent resolvers exactly one wins and the rest observe ErrNotFound.
func (s *Store) Resolve(token string) (*File, error) {
	token = filepath.Base(token)
	staged := filepath.Join(s.root, "tmp", token)
	claimed := staged + ".claimed-" + uuid.New().String()

	if err := os.Rename(staged, claimed); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("media: resolve %s: %w", token, ErrNotFound)
		}
		return nil, fmt.Errorf("media: resolve %s: %w", token, err)
	}
	defer os.Remove(claimed)

	b, err := os.ReadFile(claimed)
	if err != nil {
		return nil, fmt.Errorf("media: resolve %s: %w", token, err)
	}

	return &File{
		Name:        token,
		ContentType: common.GuessContentType(token),
		Content:     b,
	}, nil
}

// Remove deletes a durable file. Removing a file that is already gone is not
// an error.
func (s *Store) Remove(name string) error {
	name = filepath.Base(name)
	if name == "" || strings.HasPrefix(name, ".") {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("media: remove %s: %w", name, err)
	}
	return nil
}
