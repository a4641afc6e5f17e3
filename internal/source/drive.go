package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Google Drive MIME types handled by the connector.
const (
	mimeTypeGoogleDoc = "application/vnd.google-apps.document"
	mimeTypeFolder    = "application/vnd.google-apps.folder"

	// exportMimeText is the export format for Google Docs.
	exportMimeText = "text/plain"
)

// maxFetchSize caps the content read for a single document (5MB).
const maxFetchSize = 5 * 1024 * 1024

// listPageSize is the Drive API page size used when listing a folder.
const listPageSize = 100

// DriveConfig holds the settings for constructing a Drive source.
type DriveConfig struct {
	// FolderID is the Drive folder whose documents are served.
	FolderID string

	// TokenSource supplies OAuth2 tokens. Takes precedence over
	// CredentialsFile when both are set.
	TokenSource oauth2.TokenSource

	// CredentialsFile is the path to a service account JSON key file.
	CredentialsFile string
}

// Drive serves documents from a Google Drive folder. Google Docs are
// exported as plain text; regular text files are downloaded as-is. Binary
// files and subfolders are not listed.
type Drive struct {
	svc      *drive.Service
	folderID string
}

// NewDrive constructs a Drive source from the given config.
func NewDrive(ctx context.Context, cfg *DriveConfig) (*Drive, error) {
	if cfg.FolderID == "" {
		return nil, fmt.Errorf("source: drive folder ID must not be empty")
	}

	var opts []option.ClientOption
	switch {
	case cfg.TokenSource != nil:
		opts = append(opts, option.WithTokenSource(cfg.TokenSource))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, fmt.Errorf("source: drive requires a token source or a credentials file")
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("source: creating drive service: %w", err)
	}

	return &Drive{svc: svc, folderID: cfg.FolderID}, nil
}

// List returns every text-like document in the configured folder.
func (d *Drive) List(ctx context.Context) ([]DocInfo, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", d.folderID)

	var infos []DocInfo
	pageToken := ""
	for {
		call := d.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, size)").
			PageSize(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("source: listing drive folder: %w", mapDriveError(err))
		}

		for _, f := range page.Files {
			if !isFetchable(f) {
				continue
			}
			infos = append(infos, DocInfo{ID: f.Id, Name: f.Name})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return infos, nil
}

// Fetch returns the plain-text content of the file with the given Drive ID.
func (d *Drive) Fetch(ctx context.Context, id string) (string, error) {
	f, err := d.svc.Files.Get(id).Fields("id, name, mimeType, size").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("source: fetching drive file %s: %w", id, mapDriveError(err))
	}
	if !isFetchable(f) {
		return "", fmt.Errorf("source: drive file %s (%s): %w", id, f.MimeType, ErrUnsupportedFormat)
	}

	var resp *http.Response
	if f.MimeType == mimeTypeGoogleDoc {
		resp, err = d.svc.Files.Export(id, exportMimeText).Context(ctx).Download()
	} else {
		resp, err = d.svc.Files.Get(id).Context(ctx).Download()
	}
	if err != nil {
		return "", fmt.Errorf("source: downloading drive file %s: %w", id, mapDriveError(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return "", fmt.Errorf("source: reading drive file %s: %w", id, err)
	}
	return string(data), nil
}

// isFetchable reports whether the file can be served as plain text.
func isFetchable(f *drive.File) bool {
	if f.MimeType == mimeTypeFolder {
		return false
	}
	if f.MimeType == mimeTypeGoogleDoc {
		return true
	}
	if f.Size > maxFetchSize {
		return false
	}
	return strings.HasPrefix(f.MimeType, "text/") || f.MimeType == "application/json"
}

// mapDriveError converts googleapi errors into the package sentinels where a
// sentinel applies, and passes everything else through.
func mapDriveError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	default:
		return err
	}
}
