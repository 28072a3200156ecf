package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

const (
	packSignatureTrailerVersion    uint16 = 1
	packSignatureTrailerHeaderSize        = 4 + 2 + 4
	maxPackSignatureSize                  = 1 << 16
)

var packSignatureTrailerMagic = [4]byte{'G', 'S', 'I', 'G'}

// MarshalPackSignatureTrailer serializes sig to the trailer written after
// the pack checksum:
//
//	"GSIG" | version u16 | length u32 | signature | sha256 of the preceding bytes
func MarshalPackSignatureTrailer(sig string) ([]byte, error) {
	if sig == "" {
		return nil, fmt.Errorf("signature is empty")
	}
	if len(sig) > maxPackSignatureSize {
		return nil, fmt.Errorf("signature too long: %d", len(sig))
	}

	var buf bytes.Buffer
	buf.Write(packSignatureTrailerMagic[:])
	_ = binary.Write(&buf, binary.BigEndian, packSignatureTrailerVersion)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(sig)))
	buf.WriteString(sig)

	sum := sha256.Sum256(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

// ReadPackSignatureTrailer parses and checks a full trailer byte slice.
func ReadPackSignatureTrailer(data []byte) (string, error) {
	if len(data) < packSignatureTrailerHeaderSize+sha256.Size {
		return "", fmt.Errorf("signature trailer too short: %d", len(data))
	}
	if !bytes.Equal(data[:4], packSignatureTrailerMagic[:]) {
		return "", fmt.Errorf("invalid signature trailer magic %q", data[:4])
	}

	body := data[:len(data)-sha256.Size]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], data[len(data)-sha256.Size:]) {
		return "", fmt.Errorf("signature trailer checksum mismatch")
	}

	version := binary.BigEndian.Uint16(body[4:6])
	if version != packSignatureTrailerVersion {
		return "", fmt.Errorf("unsupported signature trailer version %d", version)
	}
	n := int(binary.BigEndian.Uint32(body[6:10]))
	if packSignatureTrailerHeaderSize+n != len(body) {
		return "", fmt.Errorf("signature trailer length %d does not match %d body bytes", n, len(body)-packSignatureTrailerHeaderSize)
	}
	return string(body[packSignatureTrailerHeaderSize:]), nil
}
