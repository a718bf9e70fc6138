package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/rescale/rescale-foldernav/internal/config"
	"github.com/rescale/rescale-foldernav/internal/constants"
	"github.com/rescale/rescale-foldernav/internal/http"
)

// AzureBucket is a Bucket backed by an Azure blob container.
type AzureBucket struct {
	client    *azblob.Client
	container *container.Client
	name      string
}

// serviceURL returns the blob endpoint of an account.
func serviceURL(account string) string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", account)
}

// NewAzureBucket builds a blob client from the [azure] section of cfg,
// authenticating with the account key or, failing that, the SAS URL.
func NewAzureBucket(cfg *config.Config) (*AzureBucket, error) {
	az := cfg.Azure
	if az.Account == "" || az.Container == "" {
		return nil, config.ErrMissingContainer
	}

	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient, // Shares the proxy-aware connection pool
		},
	}

	var client *azblob.Client
	switch {
	case az.AccountKey != "":
		cred, err := azblob.NewSharedKeyCredential(az.Account, az.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("invalid Azure account key: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL(az.Account), cred, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
	case az.SASURL != "":
		client, err = azblob.NewClientWithNoCredential(az.SASURL, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
	default:
		return nil, config.ErrMissingAzureCredential
	}

	return &AzureBucket{
		client:    client,
		container: client.ServiceClient().NewContainerClient(az.Container),
		name:      az.Container,
	}, nil
}

func isAzureNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ResourceNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == nethttp.StatusNotFound
}

func azureError(op, key string, err error) error {
	if isAzureNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, key, ErrObjectNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

// List uses the hierarchy pager with a delimiter and the flat pager
// without one.
func (b *AzureBucket) List(ctx context.Context, prefix, delim string) (Listing, error) {
	var l Listing
	add := func(items []*container.BlobItem) {
		for _, item := range items {
			if item.Name == nil {
				continue
			}
			obj := Object{Key: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					obj.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					obj.LastModified = *p.LastModified
				}
			}
			l.Objects = append(l.Objects, obj)
		}
	}

	if delim == "" {
		pager := b.client.NewListBlobsFlatPager(b.name, &azblob.ListBlobsFlatOptions{Prefix: to.Ptr(prefix)})
		for pages := 0; pager.More(); pages++ {
			if pages >= constants.MaxPaginationPages {
				return l, fmt.Errorf("list %s: more than %d pages", prefix, constants.MaxPaginationPages)
			}
			resp, err := pager.NextPage(ctx)
			if err != nil {
				return Listing{}, azureError("list", prefix, err)
			}
			add(resp.Segment.BlobItems)
		}
		return l, nil
	}

	pager := b.container.NewListBlobsHierarchyPager(delim, &container.ListBlobsHierarchyOptions{Prefix: to.Ptr(prefix)})
	for pages := 0; pager.More(); pages++ {
		if pages >= constants.MaxPaginationPages {
			return l, fmt.Errorf("list %s: more than %d pages", prefix, constants.MaxPaginationPages)
		}
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return Listing{}, azureError("list", prefix, err)
		}
		for _, p := range resp.Segment.BlobPrefixes {
			if p.Name != nil {
				l.Prefixes = append(l.Prefixes, *p.Name)
			}
		}
		add(resp.Segment.BlobItems)
	}
	return l, nil
}

// Get downloads a blob into memory.
func (b *AzureBucket) Get(ctx context.Context, key string) ([]byte, Object, error) {
	resp, err := b.client.DownloadStream(ctx, b.name, key, nil)
	if err != nil {
		return nil, Object{}, azureError("get", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Object{}, fmt.Errorf("read %s: %w", key, err)
	}
	obj := Object{Key: key, Metadata: fromAzureMetadata(resp.Metadata)}
	if resp.ContentLength != nil {
		obj.Size = *resp.ContentLength
	}
	if resp.LastModified != nil {
		obj.LastModified = *resp.LastModified
	}
	return body, obj, nil
}

// Head reads blob properties.
func (b *AzureBucket) Head(ctx context.Context, key string) (Object, error) {
	props, err := b.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return Object{}, azureError("head", key, err)
	}
	obj := Object{Key: key, Metadata: fromAzureMetadata(props.Metadata)}
	if props.ContentLength != nil {
		obj.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		obj.LastModified = *props.LastModified
	}
	return obj, nil
}

// Put uploads body as a block blob.
func (b *AzureBucket) Put(ctx context.Context, key string, body []byte, metadata map[string]string) error {
	_, err := b.client.UploadBuffer(ctx, b.name, key, body, &azblob.UploadBufferOptions{
		Metadata: toAzureMetadata(metadata),
	})
	if err != nil {
		return azureError("put", key, err)
	}
	return nil
}

// Copy re-uploads the source blob. Server-side copy from URL needs a
// source the service can read on its own, which shared-key clients do
// not provide, and the tree only holds small SQL bodies.
func (b *AzureBucket) Copy(ctx context.Context, src, dst string) error {
	body, obj, err := b.Get(ctx, src)
	if err != nil {
		return err
	}
	return b.Put(ctx, dst, body, obj.Metadata)
}

// Delete removes key, treating a missing blob as already deleted.
func (b *AzureBucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteBlob(ctx, b.name, key, nil)
	if err != nil && !isAzureNotFound(err) {
		return azureError("delete", key, err)
	}
	return nil
}

func toAzureMetadata(m map[string]string) map[string]*string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]*string, len(m))
	for k, v := range m {
		out[k] = to.Ptr(v)
	}
	return out
}

// fromAzureMetadata lower-cases keys; the service may return them
// capitalized.
func fromAzureMetadata(m map[string]*string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != nil {
			out[strings.ToLower(k)] = *v
		}
	}
	return out
}
