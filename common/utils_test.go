package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHexRoundTrip(t *testing.T) {
	b := RandBytes(16)
	s := ByteSliceToPureHexStr(b)
	assert.NotContains(t, s, "0x")
	assert.Equal(t, b, HexStrToByteSlice(s))
	assert.Equal(t, b, HexStrToByteSlice(Prepend0xPrefix(s)))
}

func TestTrimPrepend0xPrefix(t *testing.T) {
	assert.Equal(t, "abcd", Trim0xPrefix("0xabcd"))
	assert.Equal(t, "abcd", Trim0xPrefix("0Xabcd"))
	assert.Equal(t, "abcd", Trim0xPrefix("abcd"))

	assert.Equal(t, "0xabcd", Prepend0xPrefix("abcd"))
	assert.Equal(t, "0xabcd", Prepend0xPrefix("0xabcd"))
}

func TestShorten(t *testing.T) {
	long := "0x" + "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4"
	assert.Equal(t, "0xa1b2c...2c3d4", Shorten(long, 5))

	// short enough to pass through untouched
	assert.Equal(t, "0xabcd", Shorten("abcd", 5))
}

func TestRandBytes32(t *testing.T) {
	a := RandBytes32()
	b := RandBytes32()
	assert.NotEqual(t, a, b)
}
