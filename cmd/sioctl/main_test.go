package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{`{"a":1}`, `42`, `hello`, `"quoted"`})
	if len(got) != 4 {
		t.Fatalf("Expected 4 args, got %d", len(got))
	}
	if raw, ok := got[0].(json.RawMessage); !ok || string(raw) != `{"a":1}` {
		t.Errorf("Expected raw JSON object, got %#v", got[0])
	}
	if raw, ok := got[1].(json.RawMessage); !ok || string(raw) != `42` {
		t.Errorf("Expected raw JSON number, got %#v", got[1])
	}
	if s, ok := got[2].(string); !ok || s != "hello" {
		t.Errorf("Expected plain string, got %#v", got[2])
	}
	if raw, ok := got[3].(json.RawMessage); !ok || string(raw) != `"quoted"` {
		t.Errorf("Expected raw JSON string, got %#v", got[3])
	}
}

func newRoot(g *globalFlags, run func(*cobra.Command) error) *cobra.Command {
	root := &cobra.Command{Use: "sioctl", SilenceUsage: true, SilenceErrors: true}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "")
	pf.StringVarP(&g.url, "url", "u", "", "")
	pf.StringVarP(&g.namespace, "namespace", "n", "", "")
	pf.StringVarP(&g.transport, "transport", "t", "", "")
	pf.BoolVar(&g.debug, "debug", false, "")
	root.AddCommand(&cobra.Command{
		Use:  "probe",
		RunE: func(cmd *cobra.Command, args []string) error { return run(cmd) },
	})
	return root
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	data := `
url = "http://example.com:4000"
namespace = "/chat"
transport = "polling"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	g := &globalFlags{}
	var url, nsp, tr string
	root := newRoot(g, func(cmd *cobra.Command) error {
		cfg, err := g.load(cmd)
		if err != nil {
			return err
		}
		url, nsp, tr = cfg.URL, cfg.Namespace, cfg.Transport
		return nil
	})
	root.SetArgs([]string{"probe", "--config", path, "--namespace", "/admin"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}

	if url != "http://example.com:4000" {
		t.Errorf("Expected URL from file, got %s instead", url)
	}
	if nsp != "/admin" {
		t.Errorf("Expected namespace from flag, got %s instead", nsp)
	}
	if tr != "polling" {
		t.Errorf("Expected transport from file, got %s instead", tr)
	}
}

func TestLoadRejectsInvalidFlags(t *testing.T) {
	g := &globalFlags{}
	root := newRoot(g, func(cmd *cobra.Command) error {
		_, err := g.load(cmd)
		return err
	})
	root.SetArgs([]string{"probe", "--transport", "carrier-pigeon"})
	if err := root.Execute(); err == nil {
		t.Error("Expected an error for an unknown transport")
	}
}

func TestVersionShort(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("Expected %s, got %s instead", version, got)
	}
}
