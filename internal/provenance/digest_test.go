package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionsDigestDeterminism(t *testing.T) {
	versions := map[string]string{
		"pinefarm": "v0.4.0",
		"mg5amc":   "3.5.1",
		"pineappl": "v1.2.0",
	}

	d1, err := VersionsDigest(versions)
	require.NoError(t, err)
	d2, err := VersionsDigest(map[string]string{
		"pineappl": "v1.2.0",
		"mg5amc":   "3.5.1",
		"pinefarm": "v0.4.0",
	})
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "digest must not depend on insertion order")
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestDigestChangesWithInput(t *testing.T) {
	base := map[string]string{"mg5amc": "3.5.1"}

	assert.NotEqual(t,
		MustVersionsDigest(base),
		MustVersionsDigest(map[string]string{"mg5amc": "3.5.2"}))
}

func TestDigestDomainSeparation(t *testing.T) {
	m := map[string]string{"k": "v"}

	vd, err := VersionsDigest(m)
	require.NoError(t, err)
	md, err := MetadataDigest(m)
	require.NoError(t, err)

	assert.NotEqual(t, vd, md, "same payload in different domains must differ")
}

func TestRuncardDigest(t *testing.T) {
	a, err := RuncardDigest(map[string][]byte{"launch.txt": []byte("launch @OUTPUT@\n")})
	require.NoError(t, err)
	b, err := RuncardDigest(map[string][]byte{"launch.txt": []byte("launch @OUTPUT@ \n")})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
