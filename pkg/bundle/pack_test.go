package bundle

import (
	"bytes"
	"strings"
	"testing"
)

func TestPackEntryHeaderRoundTrip(t *testing.T) {
	sizes := []uint64{0, 1, 15, 16, 127, 128, 1 << 20, 1<<63 + 5}
	for _, size := range sizes {
		for _, typ := range []PackEntryType{PackManifest, PackState, PackBlob} {
			enc := encodePackEntryHeader(typ, size)
			gotType, gotSize, n, err := decodePackEntryHeader(append(enc, 0xff))
			if err != nil {
				t.Fatalf("decodePackEntryHeader(%s, %d): %v", typ, size, err)
			}
			if gotType != typ || gotSize != size || n != len(enc) {
				t.Fatalf("decoded (%s, %d, %d), want (%s, %d, %d)", gotType, gotSize, n, typ, size, len(enc))
			}
		}
	}
}

func TestPackEntryHeaderTruncated(t *testing.T) {
	if _, _, _, err := decodePackEntryHeader(nil); err == nil {
		t.Fatal("decoded an empty header")
	}
	enc := encodePackEntryHeader(PackBlob, 1<<20)
	if _, _, _, err := decodePackEntryHeader(enc[:len(enc)-1]); err == nil {
		t.Fatal("decoded a truncated header")
	}
}

func TestPackHeaderRoundTrip(t *testing.T) {
	h := PackHeader{Version: supportedPackVersion, NumEntries: 42}
	got, err := UnmarshalPackHeader(h.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalPackHeader: %v", err)
	}
	if *got != h {
		t.Fatalf("header = %+v, want %+v", *got, h)
	}

	bad := h.Marshal()
	copy(bad, "PACK")
	if _, err := UnmarshalPackHeader(bad); err == nil {
		t.Fatal("accepted a header with the wrong magic")
	}
}

func TestEncodeDecodePack(t *testing.T) {
	want := sampleBundle(t)
	var buf bytes.Buffer
	sum, err := EncodePack(&buf, want, PackOptions{})
	if err != nil {
		t.Fatalf("EncodePack: %v", err)
	}
	if !sum.Valid() {
		t.Fatalf("checksum %q is not a valid hash", sum)
	}

	got, pack, err := DecodePack(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodePack: %v", err)
	}
	if pack.Checksum != sum {
		t.Fatalf("checksum = %s, want %s", pack.Checksum, sum)
	}
	if pack.Signature != "" {
		t.Fatalf("unsigned pack has signature %q", pack.Signature)
	}
	if int(pack.Header.NumEntries) != 1+len(want.States)+len(want.Blobs) {
		t.Fatalf("entries = %d", pack.Header.NumEntries)
	}
	assertBundlesEqual(t, want, got)
}

func TestEncodePackIsDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	if _, err := EncodePack(&a, sampleBundle(t), PackOptions{}); err != nil {
		t.Fatalf("EncodePack: %v", err)
	}
	shuffled := sampleBundle(t)
	shuffled.States[0], shuffled.States[2] = shuffled.States[2], shuffled.States[0]
	if _, err := EncodePack(&b, shuffled, PackOptions{}); err != nil {
		t.Fatalf("EncodePack: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("equal bundles encoded to different bytes")
	}
}

func TestReadPackDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	if _, err := EncodePack(&buf, sampleBundle(t), PackOptions{}); err != nil {
		t.Fatalf("EncodePack: %v", err)
	}
	data := buf.Bytes()

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-1] ^= 0xff
	if _, err := ReadPack(flipped); err == nil || !strings.Contains(err.Error(), "checksum") {
		t.Fatalf("ReadPack(bad trailer) err = %v", err)
	}

	if _, err := ReadPack(data[:len(data)-10]); err == nil {
		t.Fatal("ReadPack accepted a truncated pack")
	}
}

func TestPackEntryCountMismatch(t *testing.T) {
	var buf bytes.Buffer
	pw, err := NewPackWriter(&buf, 2, 0)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	if err := pw.WriteEntry(PackManifest, []byte("version 1\n")); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if _, err := pw.Finish(nil); err == nil {
		t.Fatal("Finish accepted a short pack")
	}
}

func TestPackBundleRequiresManifestFirst(t *testing.T) {
	p := &Pack{Entries: []PackEntry{{Type: PackBlob, Data: make([]byte, 40)}}}
	if _, err := p.Bundle(); err == nil {
		t.Fatal("decoded a pack without a leading manifest")
	}
}

func TestSignatureTrailerRoundTrip(t *testing.T) {
	raw, err := MarshalPackSignatureTrailer("sshsig-v1:ssh-ed25519:a:b")
	if err != nil {
		t.Fatalf("MarshalPackSignatureTrailer: %v", err)
	}
	got, err := ReadPackSignatureTrailer(raw)
	if err != nil {
		t.Fatalf("ReadPackSignatureTrailer: %v", err)
	}
	if got != "sshsig-v1:ssh-ed25519:a:b" {
		t.Fatalf("signature = %q", got)
	}

	raw[12] ^= 0x01
	if _, err := ReadPackSignatureTrailer(raw); err == nil {
		t.Fatal("accepted a corrupted trailer")
	}
	if _, err := MarshalPackSignatureTrailer(""); err == nil {
		t.Fatal("marshaled an empty signature")
	}
}
