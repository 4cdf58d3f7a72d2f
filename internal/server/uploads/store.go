// Package uploads stores course images. Objects are named
// <unix-millis>_<sanitized-name> and addressed by a public reference that
// templates can put straight into an <img src>.
package uploads

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/educhain/internal/filex"
)

type Store interface {
	// Save consumes r and returns the public reference of the stored object.
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// now is a seam for tests.
var now = time.Now

// ObjectName builds the stored name for a client supplied filename.
func ObjectName(original string) string {
	return fmt.Sprintf("%d_%s", now().UnixMilli(), filex.SanitizeFilename(original))
}

func joinURL(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimRight(prefix, "/") + "/" + name
}
