package config

import "testing"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MODE", "dev")
	t.Setenv("OFFCHAIN_DATABASE_URL", "postgres://localhost/oracleflow")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.PublisherMaxSessions != 1 {
		t.Fatalf("expected default publisher max sessions 1, got %d", cfg.PublisherMaxSessions)
	}
	if cfg.RateLimit.PublicRPS != 50 {
		t.Fatalf("expected default public RPS 50, got %d", cfg.RateLimit.PublicRPS)
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MODE", "staging")

	if _, err := Load(); err == nil {
		t.Fatalf("expected an invalid MODE to be rejected")
	}
}

func TestLoadRequiresOffchainDatabaseURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("OFFCHAIN_DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected a missing OFFCHAIN_DATABASE_URL to be rejected")
	}
}

func TestLoadRequiresAtLeastOneKafkaBroker(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("KAFKA_BROKERS", "  ")

	if _, err := Load(); err == nil {
		t.Fatalf("expected an empty KAFKA_BROKERS to be rejected")
	}
}

func TestLoadParsesKafkaBrokersCSV(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("KAFKA_BROKERS", "broker-a:9092, broker-b:9092,  broker-c:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"broker-a:9092", "broker-b:9092", "broker-c:9092"}
	if len(cfg.KafkaBrokers) != len(want) {
		t.Fatalf("expected %d brokers, got %d (%v)", len(want), len(cfg.KafkaBrokers), cfg.KafkaBrokers)
	}
	for i, b := range want {
		if cfg.KafkaBrokers[i] != b {
			t.Fatalf("expected broker %d to be %q, got %q", i, b, cfg.KafkaBrokers[i])
		}
	}
}

func TestLoadFallsBackToDefaultOnUnparsableInt(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected an unparsable PORT to fall back to the default, got %d", cfg.Port)
	}
}

func TestLoadRejectsNonPositiveDatabaseMaxConn(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_MAX_CONN", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("expected DATABASE_MAX_CONN=0 to be rejected")
	}
}
