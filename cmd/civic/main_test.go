package main

import (
	"testing"

	"github.com/jmerrifield20/civicsync/internal/model"
	"github.com/spf13/pflag"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in       string
		endOfDay bool
		want     string
		wantErr  bool
	}{
		{in: "", want: ""},
		{in: "2024-03-05", want: "2024-03-05T00:00:00Z"},
		{in: "2024-03-05", endOfDay: true, want: "2024-03-05T23:59:59.999999999Z"},
		{in: "2024-03-05T10:00:00-05:00", endOfDay: true, want: "2024-03-05T10:00:00-05:00"},
		{in: "05/03/2024", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseDate(tc.in, tc.endOfDay)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseDate(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDate(%q): %v", tc.in, err)
			continue
		}
		var s string
		if got != nil {
			s = got.Format("2006-01-02T15:04:05.999999999Z07:00")
		}
		if s != tc.want {
			t.Errorf("parseDate(%q, %v) = %q, want %q", tc.in, tc.endOfDay, s, tc.want)
		}
	}
}

func TestFilterFlags(t *testing.T) {
	ff := &filterFlags{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	ff.register(fs)
	if err := fs.Parse([]string{"--status", "resolved", "--category", "3", "-q", " basura ", "--lat", "4.6", "--lng", "-74.1", "--radius", "2"}); err != nil {
		t.Fatal(err)
	}
	f, err := ff.filter()
	if err != nil {
		t.Fatal(err)
	}
	if f.Status != model.StatusResolved || f.CategoryID == nil || *f.CategoryID != 3 || f.Text != "basura" {
		t.Errorf("got %+v", f)
	}
	if f.Near == nil || f.Near.RadiusKm != 2 || f.Near.Center.Longitude != -74.1 {
		t.Errorf("near: got %+v", f.Near)
	}

	for _, args := range [][]string{{"--status", "closed"}, {"--priority", "urgent"}, {"--radius", "-1"}, {"--from", "ayer"}} {
		ff := &filterFlags{}
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		ff.register(fs)
		if err := fs.Parse(args); err != nil {
			t.Fatal(err)
		}
		if _, err := ff.filter(); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestDraftFlags(t *testing.T) {
	df := &draftFlags{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	df.register(fs)
	if err := fs.Parse([]string{"--title", "Hueco", "--category", "1", "--photo", "a.jpg", "--photo", "b.jpg", "--field", "size=big", "--email", "v@example.org"}); err != nil {
		t.Fatal(err)
	}

	d := df.draft(fs, 7)
	if d.Location != nil {
		t.Error("location should be unset without --lat/--lng")
	}
	if d.Owner != 7 || len(d.Photos) != 2 || d.CustomFields["size"] != "big" || d.Contact == nil {
		t.Errorf("got %+v", d)
	}

	if err := fs.Parse([]string{"--lat", "0"}); err != nil {
		t.Fatal(err)
	}
	if d := df.draft(fs, 7); d.Location == nil || d.Location.Latitude != 0 {
		t.Errorf("explicit zero latitude should set a location, got %+v", d.Location)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Alumbrado público", 9); got != "Alumbrad…" {
		t.Errorf("got %q", got)
	}
	if got := truncate("corto", 9); got != "corto" {
		t.Errorf("got %q", got)
	}
}
