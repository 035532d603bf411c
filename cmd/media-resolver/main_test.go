package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSniffCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub.vtt")
	if err := os.WriteFile(path, []byte{0x47, 0x40, 0x11, 0x10, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "sniff", "--declared", "text/vtt", path)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if !strings.Contains(out, "format:       mpeg_ts") || !strings.Contains(out, "content-type: video/mp2t") {
		t.Errorf("output = %q", out)
	}
}

func TestUnpackCommand(t *testing.T) {
	script := `<script>eval(function(p,a,c,k,e,d){while(c--)if(k[c])p=p.replace(new RegExp('\\b'+c.toString(a)+'\\b','g'),k[c]);return p}('0 1',10,2,'hello|world'.split('|'),0,{}))</script>`

	out, err := run(t, script, "unpack", "-")
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if strings.TrimSpace(out) != "hello world" {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, "<html>nothing here</html>", "unpack", "-"); err == nil {
		t.Error("expected an error for input without a packed script")
	}
}

func TestExtractCommand_NoMatch(t *testing.T) {
	out, err := run(t, "", "extract", "https://unknown.example/e/1")
	if err == nil {
		t.Fatal("expected a failure exit for an unsupported url")
	}
	if !strings.Contains(out, `"server": "unknown"`) || !strings.Contains(out, "No extractor available for this URL") {
		t.Errorf("output = %q", out)
	}
}
