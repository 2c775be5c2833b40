package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for provenance digests.
// The version suffix allows the algorithm to change without collisions.
const (
	DomainVersions = "pinefarm/versions/v1"
	DomainMetadata = "pinefarm/metadata/v1"
	DomainRuncard  = "pinefarm/runcard/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// VersionsDigest returns the digest of the program versions used by a run.
func VersionsDigest(versions map[string]string) (string, error) {
	canonical, err := MarshalCanonical(versions)
	if err != nil {
		return "", fmt.Errorf("versions digest: %w", err)
	}
	return hashWithDomain(DomainVersions, canonical), nil
}

// MetadataDigest returns the digest of a grid's metadata map.
func MetadataDigest(metadata map[string]string) (string, error) {
	canonical, err := MarshalCanonical(metadata)
	if err != nil {
		return "", fmt.Errorf("metadata digest: %w", err)
	}
	return hashWithDomain(DomainMetadata, canonical), nil
}

// RuncardDigest returns the digest of the files making up a runcard, keyed
// by file name.
func RuncardDigest(files map[string][]byte) (string, error) {
	obj := make(map[string]string, len(files))
	for name, data := range files {
		obj[name] = hex.EncodeToString(data)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("runcard digest: %w", err)
	}
	return hashWithDomain(DomainRuncard, canonical), nil
}

// MustVersionsDigest is like VersionsDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustVersionsDigest(versions map[string]string) string {
	d, err := VersionsDigest(versions)
	if err != nil {
		panic(err)
	}
	return d
}
