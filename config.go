package pantry

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pantry/kv"
	"pantry/logger"
)

// Config selects the store, codec and log level of a Kitchen.
type Config struct {
	Store    kv.Config
	Codec    string
	LogLevel string
}

// LoadConfig reads PANTRY_* variables through getenv. Unset values keep
// their defaults: memory store, msgpack, normal logging.
func LoadConfig(getenv func(string) string) (Config, error) {
	cfg := Config{
		Store: kv.Config{
			Driver: kv.DriverMemory,
		},
		Codec:    CodecMsgpack,
		LogLevel: "normal",
	}
	if v := getenv("PANTRY_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	cfg.Store.DSN = getenv("PANTRY_STORE_DSN")
	cfg.Store.S3.Bucket = getenv("PANTRY_S3_BUCKET")
	cfg.Store.S3.Region = getenv("PANTRY_S3_REGION")
	cfg.Store.S3.Endpoint = getenv("PANTRY_S3_ENDPOINT")
	cfg.Store.S3.Prefix = getenv("PANTRY_S3_PREFIX")
	if v := getenv("PANTRY_S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("PANTRY_S3_PATH_STYLE: %w", err)
		}
		cfg.Store.S3.PathStyle = b
	}
	if v := getenv("PANTRY_CODEC"); v != "" {
		cfg.Codec = v
	}
	if v := getenv("PANTRY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := CodecByName(c.Codec); err != nil {
		return err
	}
	switch strings.ToLower(c.Store.Driver) {
	case "", kv.DriverMemory, kv.DriverSQLite, kv.DriverPostgres, kv.DriverS3:
	default:
		return fmt.Errorf("%w: %q", kv.ErrUnknownDriver, c.Store.Driver)
	}
	return nil
}

// Open builds the store, logger and codec described by c and returns a
// Kitchen over them. Extra options are applied last. The caller closes the
// returned store.
func Open(ctx context.Context, c Config, logOut io.Writer, extra ...Option) (*Kitchen, kv.Store, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	codec, _ := CodecByName(c.Codec)
	log := logger.New(logger.ParseLevel(c.LogLevel), logOut)

	store, err := kv.Open(ctx, c.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", c.Store.Driver, err)
	}
	log.Info("store %s ready, codec %s", c.Store.Driver, codec.Name())

	opts := append([]Option{WithLogger(log), WithCodec(codec)}, extra...)
	return New(store, opts...), store, nil
}
