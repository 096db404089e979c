package artifacts

import (
	"fmt"
	"strings"

	"github.com/apkdrop/apkdrop/common"
)

const Extension = ".apk"

// ParsedName is the placement key derived from an artifact's filename. It is
// never persisted itself - the cache stores mappings keyed by PackageName and
// FullStem, so parsing must stay deterministic.
type ParsedName struct {
	PackageName string
	Version     string
	FullStem    string
}

type ParseError struct {
	Filename string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse splits a filename like com.example.app-2.0.1-release.apk into its
// package name (everything before the first dash that is followed by a
// digit-leading token), version (that token), and full stem (the filename
// minus extension). The package prefix must contain at least two dots.
func Parse(filename string) (ParsedName, error) {
	if !strings.HasSuffix(strings.ToLower(filename), Extension) {
		return ParsedName{}, &ParseError{Filename: filename, Err: common.ErrNotAnArtifact}
	}

	stem := filename[:len(filename)-len(Extension)]

	pkg, version := splitVersion(stem)
	if pkg == "" || version == "" {
		return ParsedName{}, &ParseError{Filename: filename, Err: common.ErrUnparsableName}
	}
	if strings.Count(pkg, ".") < 2 {
		return ParsedName{}, &ParseError{Filename: filename, Err: common.ErrUnparsableName}
	}

	return ParsedName{
		PackageName: pkg,
		Version:     version,
		FullStem:    stem,
	}, nil
}

// splitVersion finds the first dash followed by a digit-leading token. Text
// before it is the package, the token itself is the version. Suffixes after
// the version ("-release", "-arm64") are part of the stem only.
func splitVersion(stem string) (string, string) {
	for i := 0; i < len(stem); i++ {
		if stem[i] != '-' {
			continue
		}
		rest := stem[i+1:]
		if len(rest) == 0 || rest[0] < '0' || rest[0] > '9' {
			continue
		}
		version := rest
		if dash := strings.IndexByte(rest, '-'); dash >= 0 {
			version = rest[:dash]
		}
		return stem[:i], version
	}
	return "", ""
}
