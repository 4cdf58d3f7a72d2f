package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/educhain/internal/filex"
)

// LocalStore writes uploads into a directory served under URLPrefix.
type LocalStore struct {
	dir       string
	urlPrefix string
}

func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{dir: abs, urlPrefix: urlPrefix}, nil
}

// Dir is the absolute upload directory.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Save(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	obj := ObjectName(name)
	path := filepath.Join(s.dir, obj)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	if _, err := io.Copy(f, ctxReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload: %w", err)
	}

	return joinURL(s.urlPrefix, obj), nil
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
