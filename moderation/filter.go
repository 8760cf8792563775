package moderation

import (
	"slices"
	"strings"
)

var (
	DefaultResolverPrefix     = "https://ipfs.io/ipfs/"
	DefaultExcludedExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp", "svg"}
	DefaultMaxArtifacts       = 10
	DefaultPassThreshold      = 0.5
)

type Config struct {
	// prepended to "<directoryCID>/<fileName>" to build a fetchable artifact URL
	ResolverPrefix string
	// lower-case file extensions (no leading dot) which are never sent for labeling; nil means the default set
	ExcludedExtensions []string
	// hard cap on label extraction calls per submission; zero means the default
	MaxArtifacts int
	// minimum verifier confidence (inclusive) for VerdictPassed; zero means the default
	PassThreshold float64
}

func DefaultConfig() Config {
	return Config{
		ResolverPrefix:     DefaultResolverPrefix,
		ExcludedExtensions: slices.Clone(DefaultExcludedExtensions),
		MaxArtifacts:       DefaultMaxArtifacts,
		PassThreshold:      DefaultPassThreshold,
	}
}

// Fills unset fields from DefaultConfig. A nil ExcludedExtensions means the default set; a non-nil empty slice excludes nothing. Thresholds outside (0, 1] are not meaningful and fall back to the default.
func (c Config) withDefaults() Config {
	if c.ResolverPrefix == "" {
		c.ResolverPrefix = DefaultResolverPrefix
	}
	if c.ExcludedExtensions == nil {
		c.ExcludedExtensions = slices.Clone(DefaultExcludedExtensions)
	}
	if c.MaxArtifacts <= 0 {
		c.MaxArtifacts = DefaultMaxArtifacts
	}
	if !(c.PassThreshold > 0 && c.PassThreshold <= 1) {
		c.PassThreshold = DefaultPassThreshold
	}
	return c
}

// Lower-cased suffix after the last '.' in the name, or empty string if there is none.
func FileExtension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// Returns the ordered subsequence of file names whose extension is not in the excluded set, truncated to the first limit entries.
//
// NOTE: with the default excluded set, common image formats are skipped and everything else goes to the image labeler.
func FilterArtifacts(fileNames []string, excluded []string, limit int) []string {
	skip := make(map[string]bool, len(excluded))
	for _, ext := range excluded {
		skip[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	out := []string{}
	for _, name := range fileNames {
		if len(out) >= limit {
			break
		}
		if skip[FileExtension(name)] {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Builds the URL the image labeler fetches an artifact from. The format is "<prefix><directoryCID>/<fileName>", verbatim, with no escaping.
func ArtifactURL(prefix, directoryCID, fileName string) string {
	return prefix + directoryCID + "/" + fileName
}
