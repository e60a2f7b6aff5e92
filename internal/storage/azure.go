package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureStore keeps each key as a JSON blob in an Azure Blob Storage container.
type AzureStore struct {
	client    *azblob.Client
	container string
	prefix    string
}

// AzureStoreConfig holds configuration for Azure Blob Storage.
type AzureStoreConfig struct {
	// ConnectionString is the full Azure connection string (optional, alternative to AccountName+AccountKey)
	ConnectionString string
	// AccountName is the storage account name (required if ConnectionString not provided)
	AccountName string
	// AccountKey is the storage account access key (required if ConnectionString not provided)
	AccountKey string
	// Container is the blob container name (required)
	Container string
	// Prefix is prepended to every blob name, e.g. "solboard/"
	Prefix string
	// ServiceURL overrides https://<account>.blob.core.windows.net/ (e.g. for Azurite)
	ServiceURL string
}

// NewAzureStore creates a new Azure Blob Storage client.
// It supports both connection string and account+key authentication.
func NewAzureStore(cfg *AzureStoreConfig) (*AzureStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("azure storage configuration is required")
	}

	if cfg.Container == "" {
		return nil, fmt.Errorf("container name is required")
	}

	var client *azblob.Client
	var err error

	switch {
	case cfg.ConnectionString != "":
		if _, _, err := parseConnectionString(cfg.ConnectionString); err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client from connection string: %w", err)
		}

	case cfg.AccountName != "" && cfg.AccountKey != "":
		credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		serviceURL := cfg.ServiceURL
		if serviceURL == "" {
			serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client with shared key: %w", err)
		}

	default:
		return nil, fmt.Errorf("either connection string or (account name + key) must be provided")
	}

	return &AzureStore{
		client:    client,
		container: cfg.Container,
		prefix:    cfg.Prefix,
	}, nil
}

// parseConnectionString extracts account name and key from a connection string of the form
// "DefaultEndpointsProtocol=https;AccountName=xxx;AccountKey=yyy;EndpointSuffix=core.windows.net".
func parseConnectionString(connStr string) (string, string, error) {
	parts := map[string]string{}
	for _, field := range strings.Split(connStr, ";") {
		// Account keys are base64 and may end in '='
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		parts[strings.TrimSpace(key)] = value
	}

	accountName := parts["AccountName"]
	accountKey := parts["AccountKey"]
	if accountName == "" || accountKey == "" {
		return "", "", fmt.Errorf("connection string must contain AccountName and AccountKey")
	}
	return accountName, accountKey, nil
}

func (a *AzureStore) blobName(key string) string {
	return a.prefix + key + ".json"
}

// Get downloads the blob for key. A missing blob is reported as nil, nil.
func (a *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, a.blobName(key), nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", a.blobName(key), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", a.blobName(key), err)
	}
	return data, nil
}

// Put uploads value as a block blob, replacing any previous version.
func (a *AzureStore) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	contentType := "application/json; charset=utf-8"
	_, err := a.client.UploadBuffer(ctx, a.container, a.blobName(key), value, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", a.blobName(key), err)
	}
	return nil
}

func (a *AzureStore) Close() error {
	return nil
}
