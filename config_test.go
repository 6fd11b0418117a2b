package pantry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"pantry/kv"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(envOf(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != kv.DriverMemory || cfg.Codec != CodecMsgpack || cfg.LogLevel != "normal" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	cfg, err := LoadConfig(envOf(map[string]string{
		"PANTRY_STORE_DRIVER":  "s3",
		"PANTRY_S3_BUCKET":     "kitchen",
		"PANTRY_S3_REGION":     "sa-east-1",
		"PANTRY_S3_ENDPOINT":   "http://localhost:9000",
		"PANTRY_S3_PREFIX":     "home",
		"PANTRY_S3_PATH_STYLE": "true",
		"PANTRY_CODEC":         "json",
		"PANTRY_LOG_LEVEL":     "verbose",
	}))
	if err != nil {
		t.Fatal(err)
	}
	s3 := cfg.Store.S3
	if cfg.Store.Driver != kv.DriverS3 || s3.Bucket != "kitchen" || s3.Region != "sa-east-1" ||
		s3.Endpoint != "http://localhost:9000" || s3.Prefix != "home" || !s3.PathStyle {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Codec != "json" || cfg.LogLevel != "verbose" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"driver":     {"PANTRY_STORE_DRIVER": "redis"},
		"codec":      {"PANTRY_CODEC": "yaml"},
		"path style": {"PANTRY_S3_PATH_STYLE": "maybe"},
	}
	for name, env := range tests {
		if _, err := LoadConfig(envOf(env)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	_, err := LoadConfig(envOf(map[string]string{"PANTRY_STORE_DRIVER": "redis"}))
	if !errors.Is(err, kv.ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	var logs bytes.Buffer
	cfg, _ := LoadConfig(envOf(map[string]string{"PANTRY_LOG_LEVEL": "normal"}))
	k, store, err := Open(context.Background(), cfg, &logs)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := k.Stock.Upsert(context.Background(), farinha()); err != nil {
		t.Fatal(err)
	}
	if len(k.Stock.All(context.Background())) != 1 {
		t.Fatal("expected the stored item back")
	}
	if !bytes.Contains(logs.Bytes(), []byte("store memory ready")) {
		t.Fatalf("expected startup log, got %q", logs.String())
	}
}
