package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AZURE_OPENAI_API_KEY", "")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCleanupCommandPrintsProposalAndWritesWorkbook(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "points.csv", "ID,Pain Point\n1,Invoices are approved late\n2,Invoices are approved late\n3,No single customer view\n")
	xlsx := filepath.Join(dir, "proposal.xlsx")

	out, err := runCLI(t, "cleanup", in, "--out", xlsx)
	if err != nil {
		t.Fatalf("cleanup: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Merge->1") || !strings.Contains(out, "1 exact") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	blob, err := os.ReadFile(xlsx)
	if err != nil || !bytes.HasPrefix(blob, []byte("PK")) {
		t.Fatalf("workbook not written: %v", err)
	}
}

func TestCleanupCommandLLMWithoutKey(t *testing.T) {
	in := writeFile(t, t.TempDir(), "points.csv", "Pain Point\nInvoices are late\n")
	if _, err := runCLI(t, "cleanup", in, "--llm"); err == nil {
		t.Fatal("expected an error when --llm has no model")
	}
}

func TestCleanupCommandMissingColumn(t *testing.T) {
	in := writeFile(t, t.TempDir(), "points.csv", "Owner,Region\nAna,EMEA\n")
	_, err := runCLI(t, "cleanup", in)
	if err == nil || !strings.Contains(err.Error(), "pain point text") {
		t.Fatalf("err=%v", err)
	}
}

func TestMapAppsOffline(t *testing.T) {
	dir := t.TempDir()
	physical := writeFile(t, dir, "physical.csv", "App ID,Application Name\nSRV-01,SAP finance ledger\nSRV-02,Workday recruiting portal\n")
	logical := writeFile(t, dir, "logical.csv", "Logical ID,Name\nLA-1,Finance ledger\nLA-2,Recruiting portal\n")

	out, err := runCLI(t, "map-apps", "--physical", physical, "--logical", logical, "--offline")
	if err != nil {
		t.Fatalf("map-apps: %v\n%s", err, out)
	}
	if !strings.Contains(out, "LA-1") || !strings.Contains(out, "LA-2") || !strings.Contains(out, "substituted") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestMapAppsRequiresFlags(t *testing.T) {
	if _, err := runCLI(t, "map-apps"); err == nil {
		t.Fatal("expected missing flag error")
	}
}
