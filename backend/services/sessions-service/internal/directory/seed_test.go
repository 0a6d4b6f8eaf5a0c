package directory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const seedYAML = `
networks:
  - id: NET
    operators:
      - id: DE*GEF
        name: GraphDefined
        pools:
          - id: DE*GEF*P1
            stations:
              - id: DE*GEF*S1
                evses: ["DE*GEF*E1", "DE*GEF*E2"]
`

func TestLoadFileRegistersHierarchy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	evse, ok := r.EVSE("DE*GEF*E2")
	if !ok || evse.StationID != "DE*GEF*S1" {
		t.Fatalf("unexpected evse %+v", evse)
	}
	op, ok := r.Operator("DE*GEF")
	if !ok || op.NetworkID != "NET" || op.Name != "GraphDefined" {
		t.Fatalf("unexpected operator %+v", op)
	}
	if ids := r.EVSEIDs(); len(ids) != 2 {
		t.Fatalf("expected 2 evses, got %v", ids)
	}
}

func TestLoadRejectsBrokenDocuments(t *testing.T) {
	r := NewRegistry()
	if err := r.Load([]byte("networks: [")); err == nil {
		t.Fatal("expected decode error")
	}
	if err := r.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
