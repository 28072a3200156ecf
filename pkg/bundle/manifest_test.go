package bundle

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestManifestRoundTrip(t *testing.T) {
	want := sampleBundle(t).Manifest
	data := MarshalManifest(&want)
	if !bytes.HasPrefix(data, []byte("version 1\nsession test-session\nhash sha256\nroot 1\nexternal 40\n")) {
		t.Fatalf("unexpected manifest layout:\n%s", data)
	}
	got, err := UnmarshalManifest(data)
	if err != nil {
		t.Fatalf("UnmarshalManifest: %v", err)
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalManifestErrors(t *testing.T) {
	cases := map[string]string{
		"missing version": "hash sha256\n",
		"bad version":     "version one\n",
		"unknown key":     "version 1\ncolor blue\n",
		"reserved root":   "version 1\nroot 0\n",
		"bad external":    "version 1\nexternal x\n",
		"object no type":  "version 1\nobject 3\n",
		"bad hash":        "version 1\nhash md5\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := UnmarshalManifest([]byte(in)); err == nil {
				t.Fatalf("UnmarshalManifest(%q) succeeded", in)
			}
		})
	}
}

func TestUnmarshalManifestReportsLine(t *testing.T) {
	_, err := UnmarshalManifest([]byte("version 1\nhash sha256\nroot nope\n"))
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("err = %v, want a line 3 error", err)
	}
}
