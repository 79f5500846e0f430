package helper

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"

	"fieldforce_backend/internals/configs"
)

// PhotoStore turns an uploaded check-in/out photo into a public URL.
type PhotoStore interface {
	SavePhoto(ctx context.Context, userID uuid.UUID, filename string, data []byte) (string, error)
}

/* =======================================================================
   Alibaba OSS
======================================================================= */

type OSSService struct {
	Client     *oss.Client
	Bucket     *oss.Bucket
	Endpoint   string
	BucketName string
	Prefix     string // optional: "attendance"
	WebP       WebPOptions
}

func NewOSSServiceFromEnv(prefix string) (*OSSService, error) {
	endpoint := configs.GetEnv("ALI_OSS_ENDPOINT")
	ak := configs.GetEnv("ALI_OSS_ACCESS_KEY")
	sk := configs.GetEnv("ALI_OSS_SECRET_KEY")
	sts := configs.GetEnv("ALI_OSS_SECURITY_TOKEN")
	bucketName := configs.GetEnv("ALI_OSS_BUCKET")
	if endpoint == "" || ak == "" || sk == "" || bucketName == "" {
		return nil, fmt.Errorf("missing env: ALI_OSS_ENDPOINT/ACCESS_KEY/SECRET_KEY/BUCKET")
	}

	var (
		client *oss.Client
		err    error
	)
	if sts != "" {
		client, err = oss.New(endpoint, ak, sk, oss.SecurityToken(sts))
	} else {
		client, err = oss.New(endpoint, ak, sk)
	}
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}

	bkt, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}

	if loc, err := client.GetBucketLocation(bucketName); err != nil {
		if se, ok := err.(oss.ServiceError); ok && se.StatusCode == 403 {
			log.Printf("[OSS] warn: skip location check (bucket=%s): %s", bucketName, se.Code)
		} else {
			return nil, fmt.Errorf("verify bucket: %w", err)
		}
	} else {
		log.Printf("[OSS] bucket %s location: %s", bucketName, loc)
	}

	return &OSSService{
		Client:     client,
		Bucket:     bkt,
		Endpoint:   endpoint,
		BucketName: bucketName,
		Prefix:     strings.Trim(prefix, "/"),
		WebP:       DefaultWebPOptions(),
	}, nil
}

func (s *OSSService) SavePhoto(ctx context.Context, userID uuid.UUID, filename string, data []byte) (string, error) {
	webpData, err := ConvertToWebP(data, filename, s.WebP)
	if err != nil {
		return "", err
	}
	key := buildObjectKey(s.Prefix, userID, filename)
	if err := s.Bucket.PutObject(key, bytes.NewReader(webpData),
		oss.WithContext(ctx),
		oss.ContentType("image/webp"),
		oss.ContentDisposition("inline"),
		oss.CacheControl("public, max-age=31536000, immutable"),
	); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

func (s *OSSService) DeleteObject(ctx context.Context, key string) error {
	return s.Bucket.DeleteObject(key, oss.WithContext(ctx))
}

func (s *OSSService) PublicURL(key string) string {
	if key == "" {
		return ""
	}
	if base := configs.GetEnv("ALI_OSS_PUBLIC_BASE"); base != "" {
		return strings.TrimRight(base, "/") + "/" + key
	}
	end := strings.TrimPrefix(strings.TrimPrefix(s.Endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", s.BucketName, end, key)
}

/* =======================================================================
   Local disk (development / no OSS credentials)
======================================================================= */

// DiskStore writes WebP photos under Dir and serves them below BaseURL.
type DiskStore struct {
	Dir     string
	BaseURL string // e.g. "/uploads"
	WebP    WebPOptions
}

func (d *DiskStore) SavePhoto(ctx context.Context, userID uuid.UUID, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	webpData, err := ConvertToWebP(data, filename, d.WebP)
	if err != nil {
		return "", err
	}
	key := buildObjectKey("", userID, filename)
	path := filepath.Join(d.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, webpData, 0o644); err != nil {
		return "", err
	}
	return strings.TrimRight(d.BaseURL, "/") + "/" + key, nil
}

// NewPhotoStoreFromEnv prefers OSS and falls back to UPLOAD_DIR.
func NewPhotoStoreFromEnv() PhotoStore {
	svc, err := NewOSSServiceFromEnv("attendance")
	if err == nil {
		return svc
	}
	log.Printf("[WARN] OSS unavailable (%v), storing photos on disk", err)
	return &DiskStore{
		Dir:     configs.GetEnv("UPLOAD_DIR", "./uploads"),
		BaseURL: configs.GetEnv("UPLOAD_BASE_URL", "/uploads"),
		WebP:    DefaultWebPOptions(),
	}
}

/* =======================================================================
   Key utils
======================================================================= */

func buildObjectKey(prefix string, userID uuid.UUID, filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	ts := time.Now().UTC().Format("20060102_150405")
	key := fmt.Sprintf("%s/%s_%s_%s.webp", userID, slugify(base), ts, randHex(3))
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, s)
	if s == "" {
		return "photo"
	}
	return s
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func init() {
	_ = mime.AddExtensionType(".webp", "image/webp")
}
