package moderation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileExtension(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("pdf", FileExtension("a.pdf"))
	assert.Equal("png", FileExtension("Photo.PNG"))
	assert.Equal("gz", FileExtension("archive.tar.gz"))
	assert.Equal("", FileExtension("README"))
	assert.Equal("", FileExtension("trailing."))
	assert.Equal("hidden", FileExtension(".hidden"))
}

func TestFilterArtifacts(t *testing.T) {
	assert := assert.New(t)
	excluded := DefaultExcludedExtensions

	assert.Equal([]string{"a.pdf", "c.pdf"}, FilterArtifacts([]string{"a.pdf", "b.png", "c.pdf"}, excluded, 10))
	assert.Equal([]string{"README", "x.webp"}, FilterArtifacts([]string{"README", "b.JPEG", "c.svg", "d.Gif", "e.bmp", "f.jpg", "x.webp"}, excluded, 10))
	assert.Empty(FilterArtifacts(nil, excluded, 10))
	assert.Empty(FilterArtifacts([]string{"a.png"}, excluded, 10))
	assert.Equal([]string{"1.txt", "2.txt"}, FilterArtifacts([]string{"1.txt", "x.png", "2.txt", "3.txt"}, excluded, 2))

	// extensions are normalized the same way as file names
	assert.Equal([]string{"a.png"}, FilterArtifacts([]string{"a.png", "b.PDF"}, []string{".pdf"}, 10))
}

func TestArtifactURL(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("https://ipfs.io/ipfs/bafydir/a.pdf", ArtifactURL("https://ipfs.io/ipfs/", "bafydir", "a.pdf"))
	// no escaping or normalization
	assert.Equal("http://gw/x//my file.pdf", ArtifactURL("http://gw/", "x/", "my file.pdf"))
}

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)

	c := DefaultConfig()
	assert.Equal("https://ipfs.io/ipfs/", c.ResolverPrefix)
	assert.Equal([]string{"png", "jpg", "jpeg", "gif", "bmp", "svg"}, c.ExcludedExtensions)
	assert.Equal(10, c.MaxArtifacts)
	assert.Equal(0.5, c.PassThreshold)

	// mutating one config doesn't leak in to the package defaults
	c.ExcludedExtensions[0] = "pdf"
	assert.Equal("png", DefaultExcludedExtensions[0])

}

func TestConfigDefaults(t *testing.T) {
	assert := assert.New(t)

	c := Config{ResolverPrefix: "x/", MaxArtifacts: 5}.withDefaults()
	assert.Equal("x/", c.ResolverPrefix)
	assert.Equal(5, c.MaxArtifacts)
	assert.Equal(DefaultExcludedExtensions, c.ExcludedExtensions)
	assert.Equal(0.5, c.PassThreshold)

	assert.Equal(DefaultConfig(), Config{}.withDefaults())

	// explicitly empty exclusions are kept
	c = Config{ExcludedExtensions: []string{}}.withDefaults()
	assert.NotNil(c.ExcludedExtensions)
	assert.Empty(c.ExcludedExtensions)

	for _, bad := range []float64{-1, 0, 1.5, math.NaN()} {
		assert.Equal(0.5, Config{PassThreshold: bad}.withDefaults().PassThreshold, bad)
	}
	assert.Equal(0.8, Config{PassThreshold: 0.8}.withDefaults().PassThreshold)
	assert.Equal(1.0, Config{PassThreshold: 1}.withDefaults().PassThreshold)
	assert.Equal(10, Config{MaxArtifacts: -3}.withDefaults().MaxArtifacts)
}
