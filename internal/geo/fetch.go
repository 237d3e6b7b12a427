package geo

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/eventstream/internal/logger"
	"github.com/customeros/eventstream/internal/tracing"
)

type Config struct {
	DBPath            string `env:"GEOIP_DB_PATH" envDefault:"mmdb/GeoLite2-City.mmdb"`
	R2AccountID       string `env:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	R2Bucket          string `env:"R2_GEOIP_BUCKET" envDefault:"geoip"`
	R2ObjectKey       string `env:"R2_GEOIP_OBJECT_KEY" envDefault:"GeoLite2-City.mmdb"`
}

// RefreshEnabled reports whether R2 credentials are present. Without them
// the service runs off the local database file only.
func (c *Config) RefreshEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != ""
}

// DatabaseFetcher downloads the city database from Cloudflare R2. The
// download goes to a temp file first and is renamed over the live path, so
// an open reader never sees a half-written database.
type DatabaseFetcher struct {
	cfg        *Config
	log        logger.Logger
	downloader *s3manager.Downloader
}

func NewDatabaseFetcher(cfg *Config, log logger.Logger) (*DatabaseFetcher, error) {
	if !cfg.RefreshEnabled() {
		return nil, errors.New("R2 credentials not configured")
	}

	awsCfg := &aws.Config{
		Endpoint:         aws.String("https://" + cfg.R2AccountID + ".r2.cloudflarestorage.com"),
		Region:           aws.String("auto"),
		Credentials:      credentials.NewStaticCredentials(cfg.R2AccessKeyID, cfg.R2AccessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	}
	s := session.Must(session.NewSession(awsCfg))

	return &DatabaseFetcher{
		cfg:        cfg,
		log:        log,
		downloader: s3manager.NewDownloader(s),
	}, nil
}

func (f *DatabaseFetcher) Fetch(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DatabaseFetcher.Fetch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("bucket", f.cfg.R2Bucket, "key", f.cfg.R2ObjectKey)

	if err := os.MkdirAll(filepath.Dir(f.cfg.DBPath), 0o755); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to create geoip database directory")
	}

	tmpPath := f.cfg.DBPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to create temp file")
	}

	written, err := f.downloader.DownloadWithContext(ctx, file,
		&s3.GetObjectInput{
			Bucket: aws.String(f.cfg.R2Bucket),
			Key:    aws.String(f.cfg.R2ObjectKey),
		})
	if closeErr := file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to download geoip database")
	}

	if err := os.Rename(tmpPath, f.cfg.DBPath); err != nil {
		os.Remove(tmpPath)
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to move geoip database into place")
	}

	f.log.Infof("Downloaded geoip database to %s (%d bytes)", f.cfg.DBPath, written)
	return nil
}
