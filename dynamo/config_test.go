package dynamo

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TablePrefix != "sparse" {
		t.Errorf("expected TablePrefix 'sparse', got %q", cfg.TablePrefix)
	}
	if cfg.ParentHashIndex != "parenthash-index" {
		t.Errorf("expected ParentHashIndex 'parenthash-index', got %q", cfg.ParentHashIndex)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{}
	cfg.validate()
	if cfg.TablePrefix != "sparse" {
		t.Errorf("expected empty prefix to default, got %q", cfg.TablePrefix)
	}
	if cfg.ParentHashIndex != "parenthash-index" {
		t.Errorf("expected empty index to default, got %q", cfg.ParentHashIndex)
	}
}

func TestTableName(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.tableName("AU"); got != "sparse_au" {
		t.Errorf("expected sparse_au, got %q", got)
	}
}
