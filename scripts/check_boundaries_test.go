package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGoFile(t *testing.T, path string, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestCollectViolations(t *testing.T) {
	root := filepath.Join(t.TempDir(), "contexts")
	service := filepath.Join(root, "records-access", "consent-service")

	writeGoFile(t, filepath.Join(service, "domain", "services", "ok.go"), `package services
import (
	"time"
	"medvault/contexts/records-access/consent-service/domain/entities"
)
`)
	writeGoFile(t, filepath.Join(service, "application", "commands", "bad.go"), `package commands
import (
	"medvault/contexts/records-access/consent-service/adapters/memory"
	"medvault/internal/platform/db"
)
`)
	writeGoFile(t, filepath.Join(service, "ports", "ports.go"), `package ports
import "medvault/internal/shared/events"
`)
	writeGoFile(t, filepath.Join(service, "domain", "entities", "cross.go"), `package entities
import "medvault/contexts/identity/other-service/domain/entities"
`)
	writeGoFile(t, filepath.Join(service, "module.go"), `package consent
import "medvault/internal/platform/db"
`)

	violations := collectViolations(root)
	rules := map[string]int{}
	for _, v := range violations {
		rules[v.Rule]++
	}
	if len(violations) != 4 {
		t.Fatalf("expected 4 violations, got %+v", violations)
	}
	if rules["application must not import adapters"] != 1 ||
		rules["application import is outside explicit allowlist"] != 1 ||
		rules["cross-service imports are forbidden"] != 1 ||
		rules["domain import is outside explicit allowlist"] != 1 {
		t.Fatalf("unexpected rule counts: %v", rules)
	}
}
