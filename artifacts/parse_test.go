package artifacts

import (
	"errors"
	"testing"

	"github.com/apkdrop/apkdrop/common"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	parsed, err := Parse("com.example.app-2.0.1-release.apk")
	assert.NoError(t, err)
	assert.Equal(t, "com.example.app", parsed.PackageName)
	assert.Equal(t, "2.0.1", parsed.Version)
	assert.Equal(t, "com.example.app-2.0.1-release", parsed.FullStem)
}

func TestParseNoSuffix(t *testing.T) {
	parsed, err := Parse("org.fdroid.fdroid-1.19.apk")
	assert.NoError(t, err)
	assert.Equal(t, "org.fdroid.fdroid", parsed.PackageName)
	assert.Equal(t, "1.19", parsed.Version)
	assert.Equal(t, "org.fdroid.fdroid-1.19", parsed.FullStem)
}

func TestParseDashedPackage(t *testing.T) {
	// Dashes inside the package are fine as long as the version token leads
	// with a digit.
	parsed, err := Parse("com.some-vendor.app-10.2b-beta-arm64.apk")
	assert.NoError(t, err)
	assert.Equal(t, "com.some-vendor.app", parsed.PackageName)
	assert.Equal(t, "10.2b", parsed.Version)
	assert.Equal(t, "com.some-vendor.app-10.2b-beta-arm64", parsed.FullStem)
}

func TestParseCaseInsensitiveExtension(t *testing.T) {
	parsed, err := Parse("com.example.app-1.0.APK")
	assert.NoError(t, err)
	assert.Equal(t, "com.example.app", parsed.PackageName)
}

func TestParseDeterministic(t *testing.T) {
	first, err := Parse("com.example.app-2.0.1-release.apk")
	assert.NoError(t, err)
	second, err := Parse("com.example.app-2.0.1-release.apk")
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseRejectsWrongExtension(t *testing.T) {
	_, err := Parse("com.example.app-2.0.1.zip")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotAnArtifact))

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "com.example.app-2.0.1.zip", parseErr.Filename)
}

func TestParseRejectsNoVersion(t *testing.T) {
	_, err := Parse("noversion.apk")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnparsableName))
}

func TestParseRejectsShallowPackage(t *testing.T) {
	// Only one dot in the package prefix
	_, err := Parse("example.app-2.0.1.apk")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnparsableName))
}

func TestParseRejectsNonDigitVersion(t *testing.T) {
	_, err := Parse("com.example.app-beta.apk")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnparsableName))
}
