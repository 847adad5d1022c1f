// Package documents stores uploaded document payloads and hands back opaque
// references. The pending lifecycle only ever sees the references.
package documents

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"enrollgate/internal/completeness"
	"enrollgate/internal/pending/models"
	"enrollgate/internal/requirements"
)

// Upload is one document payload for an applicant.
type Upload struct {
	Owner       models.NationalID
	Kind        requirements.DocKind
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store persists payloads and returns the reference to record.
type Store interface {
	Put(ctx context.Context, u Upload) (completeness.Reference, error)
}

// objectName is pending/<national id>/<kind>/<uuid><ext>. A fresh name per
// upload keeps earlier versions addressable until the reference is replaced.
func objectName(u Upload) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(u.Filename, `\`, "/"))))
	if len(ext) > 8 || strings.ContainsAny(ext, " /") {
		ext = ""
	}
	return path.Join("pending", string(u.Owner), string(u.Kind), uuid.NewString()+ext)
}
