package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Per attempt; a full batch archive can run to hundreds of MB
	uploadTimeout = 10 * time.Minute

	ContentTypeZip = "application/zip"
)

// Supabase delivers archives to a Supabase Storage bucket over its REST API.
type Supabase struct {
	baseURL    string
	serviceKey string
	bucket     string
	client     *http.Client
}

func NewSupabase(baseURL, serviceKey, bucket string) *Supabase {
	return &Supabase{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (s *Supabase) objectURL(kind, key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s%s/%s", s.baseURL, kind, s.bucket, key)
}

func (s *Supabase) authorize(req *http.Request, contentType string) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
}

// UploadFile PUTs a local file under key, overwriting any existing object.
// The file is reopened on every attempt.
func (s *Supabase) UploadFile(ctx context.Context, key, localPath, contentType string) error {
	return withRetry(ctx, "upload "+key, func(ctx context.Context) error {
		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", localPath, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", localPath, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPut, s.objectURL("", key), f)
		if err != nil {
			return fmt.Errorf("failed to build upload request: %w", err)
		}
		req.ContentLength = info.Size()
		s.authorize(req, contentType)
		req.Header.Set("x-upsert", "true")

		_, err = s.do(req)
		return err
	})
}

// SignURL returns a time-limited download URL for key.
func (s *Supabase) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	payload, err := json.Marshal(map[string]int{"expiresIn": int(ttl.Seconds())})
	if err != nil {
		return "", err
	}

	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	err = withRetry(ctx, "sign "+key, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL("sign/", key), bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build sign request: %w", err)
		}
		s.authorize(req, "application/json")

		body, err := s.do(req)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &signed); err != nil {
			return fmt.Errorf("invalid sign response: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if signed.SignedURL == "" {
		return "", fmt.Errorf("sign response for %s has no URL", key)
	}
	return s.baseURL + "/storage/v1" + signed.SignedURL, nil
}

// do sends req and returns the body of a 2xx response. Failures that may clear
// on their own are marked retryable.
func (s *Supabase) do(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		err = fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
		if transient(err) {
			return nil, retryable(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryable(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	err = fmt.Errorf("storage returned status %d: %s", resp.StatusCode, clip(string(body), 500))
	if transientStatus(resp.StatusCode) {
		return nil, retryable(err)
	}
	return nil, err
}

// Deliver uploads the archive and returns a signed download URL.
func (s *Supabase) Deliver(ctx context.Context, sessionID, batchID uuid.UUID, localPath string) (string, error) {
	key := ObjectKey(sessionID, batchID, filepath.Base(localPath))
	if err := s.UploadFile(ctx, key, localPath, ContentTypeZip); err != nil {
		return "", err
	}
	return s.SignURL(ctx, key, SignedURLTTL)
}

// ObjectKey is the bucket-relative key of a batch artifact.
func ObjectKey(sessionID, batchID uuid.UUID, filename string) string {
	return path.Join(sessionID.String(), batchID.String(), filename)
}
