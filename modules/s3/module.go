package s3

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/specialistvlad/gridci/internal/actions"
	"github.com/specialistvlad/gridci/internal/archive"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// Ref is the reference steps use to invoke this action.
const Ref = "gridci/s3-upload@v1"

// Module uploads build artifacts to the configured object store.
type Module struct {
	Store archive.ObjectStore
	// Bucket is used when a step does not name one.
	Bucket string
}

var _ actions.Module = (*Module)(nil)

// OnRunUpload uploads one file. The object key defaults to
// `<run id>/<job run>/<file name>`.
func (m *Module) OnRunUpload(ctx context.Context, inv *actions.Invocation) error {
	if m.Store == nil {
		return errors.New("no object store configured")
	}
	source, err := inv.String("source")
	if err != nil {
		return err
	}
	bucket := m.Bucket
	if inv.Has("bucket") {
		if bucket, err = inv.String("bucket"); err != nil {
			return err
		}
	}
	if bucket == "" {
		return errors.New("no bucket configured")
	}
	key := path.Join(inv.Run.ID, inv.Job.String(), filepath.Base(source))
	if inv.Has("key") {
		if key, err = inv.String("key"); err != nil {
			return err
		}
	}

	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source file '%s': %w", source, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", source, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(source))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	logger := ctxlog.FromContext(ctx).With("action", "upload")
	logger.Info("Uploading file.", "source", source, "bucket", bucket, "key", key, "size", stat.Size(), "contentType", contentType)

	if err := m.Store.Put(ctx, bucket, key, file, stat.Size(), contentType); err != nil {
		return fmt.Errorf("failed to upload %s: %w", source, err)
	}
	fmt.Fprintf(inv.Stdout, "uploaded %s to %s/%s\n", source, bucket, key)
	return nil
}

// Register registers the action.
func (m *Module) Register(r *actions.Registry) {
	r.Register(&actions.Definition{
		Ref:         Ref,
		Description: "Uploads a file to the object store.",
		Inputs: map[string]actions.Input{
			"source": {Type: cty.String, Required: true},
			"bucket": {Type: cty.String},
			"key":    {Type: cty.String},
		},
		Handler: m.OnRunUpload,
	})
}
