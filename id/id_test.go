package id_test

import (
	"strings"
	"testing"

	"github.com/stonezone/batchgen/id"
)

func TestMint(t *testing.T) {
	for prefix, mint := range map[id.Prefix]func() id.ID{
		id.PrefixJob:    id.NewJobID,
		id.PrefixBatch:  id.NewBatchID,
		id.PrefixWorker: id.NewWorkerID,
	} {
		a, b := mint(), mint()
		if a.Prefix() != prefix || !strings.HasPrefix(a.String(), string(prefix)+"_") {
			t.Errorf("%s: minted %q", prefix, a)
		}
		if a.String() == b.String() {
			t.Errorf("%s: duplicate id %q", prefix, a)
		}
		if strings.ContainsAny(a.String(), `/\.`) {
			t.Errorf("%s: %q is not a safe file name", prefix, a)
		}
	}
}

func TestParse(t *testing.T) {
	job := id.NewJobID().String()
	batch := id.NewBatchID().String()

	tests := []struct {
		name    string
		parse   func(string) (id.ID, error)
		in      string
		wantErr bool
	}{
		{"job", id.ParseJobID, job, false},
		{"batch", id.ParseBatchID, batch, false},
		{"batch as job", id.ParseJobID, batch, true},
		{"job as batch", id.ParseBatchID, job, true},
		{"empty", id.ParseJobID, "", true},
		{"traversal", id.ParseBatchID, "../../etc/passwd", true},
		{"garbage suffix", id.ParseJobID, "job_notanid", true},
		{"any prefix", func(s string) (id.ID, error) { return id.Parse(s, "") }, batch, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parsed %q as %q", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.in {
				t.Errorf("round trip = %q, want %q", got, tt.in)
			}
		})
	}
}

func TestNil(t *testing.T) {
	var zero id.ID
	if !zero.IsNil() || zero.String() != "" || zero.Prefix() != "" {
		t.Errorf("zero ID = %+v", zero)
	}
	if id.NewJobID().IsNil() {
		t.Error("minted ID reports nil")
	}
}
