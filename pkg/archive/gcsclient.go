package archive

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// ObjectStore abstracts the *storage.Client calls the GCS writer needs, so
// it can be tested without a real bucket.
type ObjectStore interface {
	Bucket(name string) Bucket
}

// Bucket abstracts a *storage.BucketHandle.
type Bucket interface {
	Object(name string) Object
}

// Object abstracts a *storage.ObjectHandle.
type Object interface {
	NewWriter(ctx context.Context) io.WriteCloser
}

type storageClient struct{ client *storage.Client }

// NewObjectStore adapts a *storage.Client to ObjectStore.
func NewObjectStore(client *storage.Client) ObjectStore {
	if client == nil {
		return nil
	}
	return storageClient{client: client}
}

func (s storageClient) Bucket(name string) Bucket {
	return storageBucket{handle: s.client.Bucket(name)}
}

type storageBucket struct{ handle *storage.BucketHandle }

func (b storageBucket) Object(name string) Object {
	return storageObject{handle: b.handle.Object(name)}
}

type storageObject struct{ handle *storage.ObjectHandle }

func (o storageObject) NewWriter(ctx context.Context) io.WriteCloser {
	w := o.handle.NewWriter(ctx)
	w.ContentType = "application/gzip"
	return w
}
