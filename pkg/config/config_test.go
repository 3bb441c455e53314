package config

import (
	"strings"
	"testing"
	"time"
)

func TestDBConfigEnsureDSNFromParts(t *testing.T) {
	cfg := DBConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "trace",
		Password: "secret",
		Name:     "trace",
		SSLMode:  "disable",
	}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("ensureDSN: %v", err)
	}
	for _, fragment := range []string{"host=localhost", "user=trace", "dbname=trace"} {
		if !strings.Contains(cfg.DSN, fragment) {
			t.Fatalf("dsn %q missing %q", cfg.DSN, fragment)
		}
	}
}

func TestDBConfigEnsureDSNPrefersExplicit(t *testing.T) {
	cfg := DBConfig{DSN: "host=elsewhere"}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("ensureDSN: %v", err)
	}
	if cfg.DSN != "host=elsewhere" {
		t.Fatalf("explicit dsn overwritten: %q", cfg.DSN)
	}
}

func TestDBConfigEnsureDSNRejectsEmpty(t *testing.T) {
	cfg := DBConfig{}
	if err := cfg.ensureDSN(); err == nil {
		t.Fatal("expected error without dsn or parts")
	}
}

func TestQueueSettingsAsymmetry(t *testing.T) {
	q := QueuesConfig{
		ImageConcurrency: 8,
		ImageMaxAttempts: 3,
		ImageMinBackoff:  time.Second,
		VideoConcurrency: 2,
		VideoMaxAttempts: 5,
		VideoMinBackoff:  5 * time.Second,
	}
	if q.Image().Concurrency <= q.Video().Concurrency {
		t.Fatal("image queue should run wider than video")
	}
	if q.Video().MaxAttempts <= q.Image().MaxAttempts {
		t.Fatal("video queue should retry more than image")
	}
}

func TestMediaConfigMaxUploadBytes(t *testing.T) {
	m := MediaConfig{MaxUploadMB: 2}
	if got := m.MaxUploadBytes(); got != 2*1024*1024 {
		t.Fatalf("unexpected byte ceiling %d", got)
	}
}
