package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBlobConfig selects the account and container. ConnectionString wins
// over AccountURL; with only AccountURL the default Azure credential chain
// (env, managed identity, CLI) is used.
type AzureBlobConfig struct {
	AccountURL       string
	ConnectionString string
	Container        string
}

// AzureBlobStore stores blobs in an Azure Storage container
type AzureBlobStore struct {
	client       *azblob.Client
	container    string
	containerURL string
}

// NewAzureBlobStore connects to the account and makes sure the container exists
func NewAzureBlobStore(ctx context.Context, cfg AzureBlobConfig) (*AzureBlobStore, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("container is required")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.AccountURL != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("azure credential: %w", credErr)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
	default:
		return nil, fmt.Errorf("account URL or connection string is required")
	}
	if err != nil {
		return nil, fmt.Errorf("azure blob client: %w", err)
	}

	if _, err := client.CreateContainer(ctx, cfg.Container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("create container %s: %w", cfg.Container, err)
	}

	return &AzureBlobStore{
		client:       client,
		container:    cfg.Container,
		containerURL: strings.TrimSuffix(client.URL(), "/") + "/" + cfg.Container,
	}, nil
}

// Put uploads data as a block blob, replacing any blob with the same name
func (s *AzureBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return Object{
		Key:        key,
		URL:        s.urlFor(key),
		Size:       int64(len(data)),
		UploadedAt: time.Now().UTC(),
	}, nil
}

// List returns every blob whose name starts with prefix
func (s *AzureBlobStore) List(ctx context.Context, prefix string) ([]Object, error) {
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(prefix),
	})

	var out []Object
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			obj := Object{Key: *item.Name, URL: s.urlFor(*item.Name)}
			if item.Properties != nil {
				if item.Properties.LastModified != nil {
					obj.UploadedAt = *item.Properties.LastModified
				}
				if item.Properties.ContentLength != nil {
					obj.Size = *item.Properties.ContentLength
				}
			}
			out = append(out, obj)
		}
	}
	return out, nil
}

// Get downloads the blob at url
func (s *AzureBlobStore) Get(ctx context.Context, objURL string) ([]byte, error) {
	key, err := s.keyFor(objURL)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Delete removes the blob at url
func (s *AzureBlobStore) Delete(ctx context.Context, objURL string) error {
	key, err := s.keyFor(objURL)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteBlob(ctx, s.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *AzureBlobStore) urlFor(key string) string {
	return s.containerURL + "/" + escapeKey(key)
}

func (s *AzureBlobStore) keyFor(objURL string) (string, error) {
	if !strings.HasPrefix(objURL, s.containerURL+"/") {
		return "", fmt.Errorf("url %q is outside container %s: %w", objURL, s.container, ErrNotFound)
	}
	return url.PathUnescape(strings.TrimPrefix(objURL, s.containerURL+"/"))
}
