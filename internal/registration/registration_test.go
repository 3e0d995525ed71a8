package registration

import (
	"path/filepath"
	"testing"

	"github.com/smazurov/svcwrap/internal/config"
	"github.com/smazurov/svcwrap/internal/logging"
)

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Sink = logging.SinkEventLog

	info, err := FromConfig(cfg, "svc.toml", "svcwrap")
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if info.Name != "my-service" || info.DisplayName != "My Service" {
		t.Errorf("info = %+v", info)
	}
	if !filepath.IsAbs(info.Executable) {
		t.Errorf("executable %q is not absolute", info.Executable)
	}
	if len(info.Args) != 2 || info.Args[0] != "run" || !filepath.IsAbs(info.Args[1]) {
		t.Errorf("args = %v, want [run <abs config>]", info.Args)
	}
	if !info.EventLog {
		t.Error("EventLog = false for eventlog sink")
	}
}
