package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

const (
	profileBlobName   = "me.md"
	modelBlobPrefix   = "claude"
	markdownMIME      = "text/markdown; charset=utf-8"
	defaultContainer  = "profiles"
	containerExistsRC = "ContainerAlreadyExists"
)

// AzureConfig controls connectivity to Azure Blob Storage.
type AzureConfig struct {
	Account   string
	Key       string
	Endpoint  string
	Container string
}

// Azure implements both store contracts over one blob container. Blobs are
// namespaced per user: <userID>/me.md and <userID>/claude/<modelID>.md.
// Every operation requires a non-empty user id.
type Azure struct {
	client    *azblob.Client
	container string
}

// NewAzure constructs an Azure backend and ensures the container exists.
func NewAzure(cfg AzureConfig) (*Azure, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("storage: azure account is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("storage: azure account key is required")
	}
	container := cfg.Container
	if container == "" {
		container = defaultContainer
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("storage: building azure credentials: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: creating azure client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := client.CreateContainer(ctx, container, nil); err != nil {
		if !isContainerExists(err) {
			return nil, fmt.Errorf("storage: creating container: %w", err)
		}
	}

	return &Azure{client: client, container: container}, nil
}

// Profiles returns the user-profile view of the backend.
func (a *Azure) Profiles() ProfileStore { return azureProfiles{a} }

// Models returns the self-profile view of the backend.
func (a *Azure) Models() ModelStore { return azureModels{a} }

func (a *Azure) profileBlob(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("storage: user id is required for blob storage")
	}
	return userID + "/" + profileBlobName, nil
}

func (a *Azure) modelBlob(userID, modelID string) (string, error) {
	if userID == "" {
		return "", errors.New("storage: user id is required for blob storage")
	}
	return userID + "/" + modelBlobPrefix + "/" + modelID + ".md", nil
}

func (a *Azure) read(ctx context.Context, blobName string) (string, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, blobName, nil)
	if err != nil {
		if isNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("storage: downloading %s: %w", blobName, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("storage: reading %s: %w", blobName, err)
	}
	return string(data), nil
}

func (a *Azure) write(ctx context.Context, blobName, content string) error {
	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(markdownMIME),
		},
	}
	if _, err := a.client.UploadStream(ctx, a.container, blobName, bytes.NewReader([]byte(content)), opts); err != nil {
		return fmt.Errorf("storage: uploading %s: %w", blobName, err)
	}
	return nil
}

func (a *Azure) exists(ctx context.Context, blobName string) (bool, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(blobName)
	if _, err := blobClient.GetProperties(ctx, nil); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: checking %s: %w", blobName, err)
	}
	return true, nil
}

type azureProfiles struct {
	*Azure
}

func (a azureProfiles) Read(ctx context.Context, userID string) (string, error) {
	name, err := a.profileBlob(userID)
	if err != nil {
		return "", err
	}
	return a.read(ctx, name)
}

func (a azureProfiles) Write(ctx context.Context, userID, content string) error {
	name, err := a.profileBlob(userID)
	if err != nil {
		return err
	}
	return a.write(ctx, name, content)
}

func (a azureProfiles) Exists(ctx context.Context, userID string) (bool, error) {
	name, err := a.profileBlob(userID)
	if err != nil {
		return false, err
	}
	return a.exists(ctx, name)
}

func (a azureProfiles) Location(userID string) string {
	if userID == "" {
		return fmt.Sprintf("Azure Blob Storage: %s/[unknown user]/%s", a.container, profileBlobName)
	}
	return fmt.Sprintf("Azure Blob Storage: %s/%s/%s", a.container, userID, profileBlobName)
}

type azureModels struct {
	*Azure
}

func (a azureModels) Read(ctx context.Context, userID, modelID string) (string, error) {
	name, err := a.modelBlob(userID, modelID)
	if err != nil {
		return "", err
	}
	return a.read(ctx, name)
}

func (a azureModels) Write(ctx context.Context, userID, modelID, content string) error {
	name, err := a.modelBlob(userID, modelID)
	if err != nil {
		return err
	}
	return a.write(ctx, name, content)
}

func (a azureModels) Exists(ctx context.Context, userID, modelID string) (bool, error) {
	name, err := a.modelBlob(userID, modelID)
	if err != nil {
		return false, err
	}
	return a.exists(ctx, name)
}

func (a azureModels) List(ctx context.Context, userID string) ([]ModelProfileInfo, error) {
	if userID == "" {
		return nil, errors.New("storage: user id is required for blob storage")
	}
	prefix := userID + "/" + modelBlobPrefix + "/"
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	var profiles []ModelProfileInfo
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: listing profiles: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			rel := strings.TrimPrefix(*item.Name, prefix)
			if !strings.HasSuffix(rel, ".md") {
				continue
			}
			info := ModelProfileInfo{ModelID: strings.TrimSuffix(rel, ".md")}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					info.LastModified = *item.Properties.LastModified
				}
			}
			profiles = append(profiles, info)
		}
	}
	return profiles, nil
}

func (a azureModels) Location(userID, modelID string) string {
	if userID == "" {
		return fmt.Sprintf("Azure Blob Storage: %s/[unknown user]/%s/%s.md", a.container, modelBlobPrefix, modelID)
	}
	return fmt.Sprintf("Azure Blob Storage: %s/%s/%s/%s.md", a.container, userID, modelBlobPrefix, modelID)
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}

func isContainerExists(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusConflict && strings.EqualFold(respErr.ErrorCode, containerExistsRC)
	}
	return false
}
