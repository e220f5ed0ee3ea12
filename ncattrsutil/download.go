/*
Copyright © 2020 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package ncattrsutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
	"github.com/spatialmodel/ncattrs"
)

// maybeDownload checks if the input is an existing local file.
// If not, and it is a URL or a blob location, it downloads the
// file to a temporary directory and returns the path to the downloaded
// file along with a function that removes it.
// Any other path is returned unchanged.
func maybeDownload(ctx context.Context, p string) (string, func(), error) {
	nop := func() {}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		return p, nop, nil
	}

	var r io.ReadCloser
	var err error
	switch {
	case strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://"):
		r, err = openHTTP(p)
	case IsBlob(p):
		r, err = openBlob(ctx, p)
	default:
		return p, nop, nil
	}
	if err != nil {
		return p, nop, fmt.Errorf("%w: downloading %s: %v", ncattrs.ErrConfigNotFound, p, err)
	}
	defer r.Close()

	dir, err := ioutil.TempDir("", "ncattrs")
	if err != nil {
		return p, nop, fmt.Errorf("ncattrs: creating temporary download directory: %v", err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	name := path.Base(p)
	if u, err := url.Parse(p); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	local := filepath.Join(dir, name)
	w, err := os.Create(local)
	if err != nil {
		cleanup()
		return p, nop, fmt.Errorf("ncattrs: creating file for download: %v", err)
	}
	_, err = io.Copy(w, r)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return p, nop, fmt.Errorf("%w: downloading %s: %v", ncattrs.ErrConfigNotFound, p, err)
	}
	Log.WithField("url", p).Debugf("downloaded to %s", local)
	return local, cleanup, nil
}

// openHTTP starts downloading a file from the specified URL.
func openHTTP(p string) (io.ReadCloser, error) {
	resp, err := http.Get(p)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s", resp.Status)
	}
	return resp.Body, nil
}

// IsBlob returns whether the given filename represents a blob.
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(p string) bool {
	return strings.HasPrefix(p, "gs://") || strings.HasPrefix(p, "s3://") || strings.HasPrefix(p, "file://")
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// The currently accepted storage providers are "file" for the local filesystem
// (e.g., for testing), "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("ncattrsutil.OpenBucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.NewBucket(u.Hostname())
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("ncattrsutil.OpenBucket: invalid provider %s", u.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, name, c)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, err
	}
	return s3blob.OpenBucket(ctx, s, name)
}

// openBlob starts reading the specified file from blob storage.
func openBlob(ctx context.Context, p string) (io.ReadCloser, error) {
	u, err := url.Parse(p)
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return nil, err
	}
	return bucket.NewReader(ctx, strings.TrimPrefix(u.Path, "/"))
}
