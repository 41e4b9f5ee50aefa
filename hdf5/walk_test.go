package hdf5

import (
	"errors"
	"reflect"
	"testing"

	"github.com/robert-malhotra/chunkscan/internal/h5test"
)

func TestParseAttrPath(t *testing.T) {
	tests := []struct {
		path       string
		wantObject string
		wantAttr   string
		wantErr    bool
	}{
		{"/@root_attr", "/", "root_attr", false},
		{"/data@units", "/data", "units", false},
		{"/group/dataset@attr", "/group/dataset", "attr", false},
		{"/a/b/c@d", "/a/b/c", "d", false},
		{"data@attr", "/data", "attr", false}, // relative path normalized
		{"", "", "", true},                    // empty
		{"/path/no/at", "", "", true},         // missing @
		{"/path@", "", "", true},              // empty attr name
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			obj, attr, err := ParseAttrPath(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Errorf("expected ErrInvalidPath for %q, got %v", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for %q: %v", tt.path, err)
				return
			}
			if obj != tt.wantObject {
				t.Errorf("object path: got %q, want %q", obj, tt.wantObject)
			}
			if attr != tt.wantAttr {
				t.Errorf("attr name: got %q, want %q", attr, tt.wantAttr)
			}
		})
	}
}

func TestJoinAttrPath(t *testing.T) {
	tests := []struct {
		objectPath string
		attrName   string
		want       string
	}{
		{"/", "attr", "/@attr"},
		{"/data", "units", "/data@units"},
		{"/group/dataset", "calibration", "/group/dataset@calibration"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := JoinAttrPath(tt.objectPath, tt.attrName)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"", []string{}},
		{"/", []string{}},
		{"/foo", []string{"foo"}},
		{"/foo/bar", []string{"foo", "bar"}},
		{"/a/b/c", []string{"a", "b", "c"}},
		{"foo/bar", []string{"foo", "bar"}},
		{"//foo//bar/", []string{"foo", "bar"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := SplitPath(tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWalk(t *testing.T) {
	f := openFixture(t, newFixture().root)

	var paths []string
	kinds := map[string]string{}
	err := Walk(f.Root(), func(p string, obj any, err error) error {
		if err != nil {
			t.Errorf("walk error at %s: %v", p, err)
			return nil
		}
		paths = append(paths, p)
		switch obj.(type) {
		case *Group:
			kinds[p] = "group"
		case *Dataset:
			kinds[p] = "dataset"
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/", "/lat", "/lon", "/temperature", "/forecast", "/forecast/speed", "/alias"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if kinds["/forecast"] != "group" || kinds["/alias"] != "dataset" {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestWalkStopEarly(t *testing.T) {
	f := openFixture(t, newFixture().root)

	var visited int
	err := Walk(f.Root(), func(string, any, error) error {
		visited++
		if visited == 2 {
			return ErrStopWalk
		}
		return nil
	})
	if err != nil {
		t.Errorf("ErrStopWalk leaked: %v", err)
	}
	if visited != 2 {
		t.Errorf("visited %d objects, want 2", visited)
	}

	boom := errors.New("boom")
	if err := Walk(f.Root(), func(string, any, error) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Walk returned %v, want boom", err)
	}
}

func TestWalkReportsBrokenLinks(t *testing.T) {
	fx := newFixture()
	fx.root.Members = append(fx.root.Members, h5test.Member{Name: "broken", SoftLink: "/nowhere"})
	f := openFixture(t, fx.root)

	var broken []string
	err := Walk(f.Root(), func(p string, _ any, err error) error {
		if err != nil {
			broken = append(broken, p)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(broken, []string{"/broken"}) {
		t.Errorf("broken = %v", broken)
	}
}

func TestWalkAttrs(t *testing.T) {
	f := openFixture(t, newFixture().root)

	values := map[string]any{}
	err := f.WalkAttrs(func(info AttrInfo) error {
		if info.Err != nil {
			t.Errorf("%s: %v", info.Path, info.Err)
			return nil
		}
		if info.Attr.Name() != "DIMENSION_LIST" {
			values[info.Path] = info.Value
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// /alias is the same dataset as /temperature, reported under its link name.
	want := map[string]any{
		"/@title":                   "sample",
		"/lat@CLASS":                "DIMENSION_SCALE",
		"/lat@NAME":                 "lat",
		"/lon@CLASS":                "DIMENSION_SCALE",
		"/lon@NAME":                 "lon",
		"/temperature@scale_factor": float32(0.5),
		"/temperature@units":        "K",
		"/alias@scale_factor":       float32(0.5),
		"/alias@units":              "K",
	}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("attributes = %v, want %v", values, want)
	}
}

func TestWalkAttrsStopEarly(t *testing.T) {
	f := openFixture(t, newFixture().root)

	var n int
	err := f.WalkAttrs(func(AttrInfo) error {
		n++
		return ErrStopWalk
	})
	if err != nil {
		t.Errorf("ErrStopWalk leaked: %v", err)
	}
	if n != 1 {
		t.Errorf("callback ran %d times, want 1", n)
	}
}
